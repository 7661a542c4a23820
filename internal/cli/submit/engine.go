// Package submit uploads solutions and waits for the judge verdict.
package submit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ojassist/internal/cli/api"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"go.uber.org/zap"
)

// Judge is the slice of the API client the engine needs.
type Judge interface {
	SubmissionRecords(ctx context.Context, t api.Target) ([]api.SubmissionRecord, error)
	Submit(ctx context.Context, req api.SubmitRequest) (api.ID, error)
	GradingResult(ctx context.Context, courseID, homeworkID, recordID api.ID) (api.GradingResult, error)
}

// Status is the outcome class of a submission run.
type Status string

const (
	// StatusTerminal means the judge returned a final verdict.
	StatusTerminal Status = "terminal"
	// StatusTimeout means the attempts ran out while the judge was busy.
	StatusTimeout Status = "timeout"
	// StatusUnchanged means the file matched the last submission and was not uploaded.
	StatusUnchanged Status = "unchanged"
)

// Request is one solution to submit.
type Request struct {
	api.Target
	Language  string
	FileName  string
	Content   []byte
	TimeLimit time.Duration
	// Force skips the duplicate guard.
	Force bool
}

// Result describes how a submission ended.
type Result struct {
	Status         Status
	RecordID       api.ID
	Verdict        api.Verdict
	Score          float64
	Cases          []api.CaseResult
	AllTestsPassed bool
	Attempts       int
	Intervals      []time.Duration
	// LastErr is the most recent failed grading query, if any.
	LastErr error
}

// Engine runs the upload and poll state machine. It is sequential; one
// Engine call handles one record.
type Engine struct {
	judge  Judge
	policy Policy
	sleep  Sleeper
}

func NewEngine(judge Judge, policy Policy, sleep Sleeper) *Engine {
	if sleep == nil {
		sleep = Sleep
	}
	return &Engine{judge: judge, policy: policy.normalized(), sleep: sleep}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Submit uploads req unless it matches the newest recorded submission, then
// polls until a verdict or until the attempts run out.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	if req.FileName == "" {
		return Result{}, appErr.ValidationError("file", "required")
	}

	if !req.Force {
		unchanged, err := e.unchanged(ctx, req)
		if err != nil {
			logger.Warn(ctx, "duplicate check skipped", zap.Error(err))
		}
		if unchanged {
			logger.Info(ctx, "submission unchanged, skipping upload", zap.String("file", req.FileName))
			return Result{Status: StatusUnchanged}, nil
		}
	}

	recordID, err := e.judge.Submit(ctx, api.SubmitRequest{
		Target:   req.Target,
		Language: req.Language,
		FileName: req.FileName,
		Content:  req.Content,
	})
	if err != nil {
		if appErr.Is(err, appErr.UploadFailed) {
			return Result{}, err
		}
		return Result{}, appErr.Wrapf(err, appErr.UploadFailed, "upload %s failed", req.FileName)
	}
	ctx = logger.WithRecordID(ctx, recordID.String())
	return e.Poll(ctx, req.Target, recordID, e.policy.InitialInterval(req.TimeLimit))
}

// Poll waits for the verdict of an uploaded record starting at interval.
func (e *Engine) Poll(ctx context.Context, t api.Target, recordID api.ID, interval time.Duration) (Result, error) {
	res := Result{RecordID: recordID}
	if interval <= 0 {
		interval = e.policy.InitialInterval(0)
	}

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		res.Intervals = append(res.Intervals, interval)
		if err := e.sleep(ctx, interval); err != nil {
			return res, err
		}
		res.Attempts = attempt

		grading, err := e.judge.GradingResult(ctx, t.CourseID, t.HomeworkID, recordID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.LastErr = appErr.Wrapf(err, appErr.GradingQueryFailed, "grading query attempt %d failed", attempt).
				WithDetail("attempt", attempt)
			logger.Warn(ctx, "grading query failed", zap.Int("attempt", attempt), zap.Error(err))
			interval = e.policy.NextInterval(interval, "")
			continue
		}

		res.Verdict = grading.ResultState
		res.Score = grading.Score
		res.Cases = grading.ResultList
		if grading.ResultState.InProgress() {
			logger.Debug(ctx, "still judging", zap.Int("attempt", attempt), zap.Duration("interval", interval))
			interval = e.policy.NextInterval(interval, grading.ResultState)
			continue
		}

		res.Status = StatusTerminal
		res.AllTestsPassed = grading.AllPassed()
		logger.Info(ctx, "grading finished",
			zap.String("verdict", string(grading.ResultState)),
			zap.Float64("score", grading.Score),
			zap.Int("attempts", attempt))
		return res, nil
	}

	res.Status = StatusTimeout
	res.AllTestsPassed = false
	logger.Warn(ctx, "grading did not finish", zap.Int("attempts", res.Attempts))
	return res, nil
}

func (e *Engine) unchanged(ctx context.Context, req Request) (bool, error) {
	records, err := e.judge.SubmissionRecords(ctx, req.Target)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	previous, ok := matchFile(records[0].Files, req.FileName)
	if !ok {
		return false, nil
	}
	return Fingerprint([]byte(previous.Code)) == Fingerprint(req.Content), nil
}

func matchFile(files []api.SourceFile, name string) (api.SourceFile, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	if len(files) == 1 {
		return files[0], true
	}
	return api.SourceFile{}, false
}

// Fingerprint hashes source text with line endings normalised.
func Fingerprint(content []byte) string {
	normalized := strings.ReplaceAll(string(content), "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// languageExt maps OJ language names to the default Main file extension.
var languageExt = map[string]string{
	"java":    ".java",
	"c":       ".c",
	"cpp":     ".cpp",
	"c++":     ".cpp",
	"python":  ".py",
	"python3": ".py",
	"go":      ".go",
	"kotlin":  ".kt",
}

// DefaultFileName returns Main.<ext> for a language, Main.java when unknown.
func DefaultFileName(language string) string {
	if ext, ok := languageExt[strings.ToLower(strings.TrimSpace(language))]; ok {
		return "Main" + ext
	}
	return "Main.java"
}

// ReadSource loads a solution file from dir.
func ReadSource(dir, name string) ([]byte, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.New(appErr.SourceFileNotFound).WithDetail("path", path)
		}
		return nil, appErr.Wrapf(err, appErr.SourceFileNotFound, "read %s failed", path)
	}
	return data, nil
}
