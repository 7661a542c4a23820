// Package api is the authenticated request layer for the OJ endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"sync"

	httpclient "ojassist/internal/cli/http"
	"ojassist/internal/cli/state"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	pathCourses         = "/api/union/my_courses_list/"
	pathHomeworks       = "/api/course/homeworks/list/"
	pathHomeworkGeneral = "/api/homework/general/"
	pathProblems        = "/api/homework/problems/list/"
	pathProblemInfo     = "/api/homework/problems/info/"
	pathRecentRecords   = "/api/homework/submit/recent_records/"
	pathSubmit          = "/api/homework/submit/"
	pathSubmitResult    = "/api/homework/submit/result/"

	csrfHeader = "X-CSRFToken"
	pageSize   = "40"
)

// Client owns the session (cookie jar + CSRF token) and issues OJ calls.
// The token is written only by Install/Reset, before any fan-out starts.
type Client struct {
	http *httpclient.Client

	mu        sync.RWMutex
	csrfToken string
}

func New(h *httpclient.Client) *Client {
	return &Client{http: h}
}

// HTTP exposes the underlying transport for the login handshake.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrfToken
}

// Install loads a session into the jar and token slot.
func (c *Client) Install(s *state.Session) error {
	if s == nil {
		return c.Reset()
	}
	if err := c.http.Jar().Restore(s.HTTPCookies()); err != nil {
		return appErr.Wrapf(err, appErr.InternalError, "restore cookies failed")
	}
	c.mu.Lock()
	c.csrfToken = s.CSRFToken
	c.mu.Unlock()
	return nil
}

// Reset drops all cookies and the token.
func (c *Client) Reset() error {
	if err := c.http.Jar().Reset(); err != nil {
		return appErr.Wrapf(err, appErr.InternalError, "reset cookies failed")
	}
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()
	return nil
}

// Snapshot captures the current session without an acquisition time.
func (c *Client) Snapshot() state.Session {
	return state.Session{
		Cookies:   state.FromHTTP(c.http.Jar().Snapshot()),
		CSRFToken: c.CSRFToken(),
	}
}

// Probe fetches the course list and requires a well-formed answer.
func (c *Client) Probe(ctx context.Context) error {
	var env listEnvelope
	if err := c.postForm(ctx, "probe", pathCourses, "/union", coursesForm(), &env); err != nil {
		return err
	}
	if env.List == nil {
		return appErr.New(appErr.SessionInvalid).WithMessage("course list missing from probe response")
	}
	return nil
}

func coursesForm() url.Values {
	return url.Values{
		"page":   {"1"},
		"offset": {pageSize},
		"query":  {""},
		"tags":   {"[]"},
	}
}

// ListCourses returns the enrolled courses. An empty slice means no courses.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var out []Course
	if err := c.postList(ctx, "list courses", pathCourses, "/union", coursesForm(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHomeworks returns a course's homework sorted by due date, undated last.
func (c *Client) ListHomeworks(ctx context.Context, courseID ID) ([]Homework, error) {
	form := url.Values{
		"page":     {"1"},
		"offset":   {pageSize},
		"courseId": {courseID.String()},
		"category": {"0"},
	}
	var out []Homework
	if err := c.postList(ctx, "list homeworks", pathHomeworks, "/course/"+courseID.String(), form, &out); err != nil {
		return nil, err
	}
	SortByDueDate(out)
	return out, nil
}

// SortByDueDate orders homework by due date; missing dates go last.
func SortByDueDate(hws []Homework) {
	sort.SliceStable(hws, func(i, j int) bool {
		a, b := hws[i].DueDate, hws[j].DueDate
		switch {
		case a.IsZero() && b.IsZero():
			return false
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		}
		return a.Before(b.Time)
	})
}

func (c *Client) HomeworkDetails(ctx context.Context, courseID, homeworkID ID) (HomeworkDetails, error) {
	var out HomeworkDetails
	form := url.Values{
		"homeworkId": {homeworkID.String()},
		"courseId":   {courseID.String()},
	}
	err := c.postForm(ctx, "homework details", pathHomeworkGeneral, homeworkReferer(courseID, homeworkID), form, &out)
	return out, err
}

func (c *Client) ListProblems(ctx context.Context, courseID, homeworkID ID) ([]Problem, error) {
	form := url.Values{
		"homeworkId": {homeworkID.String()},
		"courseId":   {courseID.String()},
	}
	var out []Problem
	if err := c.postList(ctx, "list problems", pathProblems, homeworkReferer(courseID, homeworkID), form, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProblemDetails(ctx context.Context, t Target) (ProblemDetails, error) {
	var out ProblemDetails
	err := c.postForm(ctx, "problem details", pathProblemInfo, homeworkReferer(t.CourseID, t.HomeworkID), problemForm(t), &out)
	return out, err
}

// SubmissionRecords returns the recent records of a problem, newest first.
func (c *Client) SubmissionRecords(ctx context.Context, t Target) ([]SubmissionRecord, error) {
	var out []SubmissionRecord
	if err := c.postList(ctx, "submission records", pathRecentRecords, homeworkReferer(t.CourseID, t.HomeworkID), problemForm(t), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitRequest is one solution upload.
type SubmitRequest struct {
	Target
	Language string
	FileName string
	Content  []byte
}

// Submit uploads a solution and returns the record id assigned by the judge.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (ID, error) {
	token := c.CSRFToken()
	if token == "" {
		return "", appErr.New(appErr.CsrfTokenMissing)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := []struct{ key, value string }{
		{"courseId", req.CourseID.String()},
		{"homeworkId", req.HomeworkID.String()},
		{"problemId", req.ProblemID.String()},
		{"language", req.Language},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return "", appErr.Wrapf(err, appErr.InternalError, "build upload form failed")
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, req.FileName))
	header.Set("Content-Type", mimetype.Detect(req.Content).String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalError, "build upload form failed")
	}
	if _, err := part.Write(req.Content); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalError, "build upload form failed")
	}
	if err := mw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalError, "build upload form failed")
	}

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:          http.MethodPost,
		URL:             pathSubmit,
		Headers:         c.headers(token, homeworkReferer(req.CourseID, req.HomeworkID)),
		Body:            body.Bytes(),
		ContentType:     mw.FormDataContentType(),
		FollowRedirects: true,
	})
	if err != nil {
		return "", appErr.Network(err, "submit")
	}
	if resp.StatusCode != http.StatusOK {
		return "", appErr.Newf(appErr.UploadFailed, "submit: unexpected HTTP status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}
	var out struct {
		RecordID ID     `json:"recordId"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", appErr.Wrapf(err, appErr.UploadFailed, "submit: response is not valid JSON")
	}
	if out.RecordID.IsZero() {
		msg := "submit: no record id in response"
		if out.Message != "" {
			msg += ": " + out.Message
		}
		return "", appErr.New(appErr.UploadFailed).WithMessage(msg)
	}
	logger.Info(ctx, "solution uploaded", zap.String("record_id", out.RecordID.String()), zap.String("problem_id", req.ProblemID.String()))
	return out.RecordID, nil
}

// GradingResult asks the judge for the verdict of one record.
func (c *Client) GradingResult(ctx context.Context, courseID, homeworkID, recordID ID) (GradingResult, error) {
	var out GradingResult
	form := url.Values{
		"recordId":   {recordID.String()},
		"courseId":   {courseID.String()},
		"homeworkId": {homeworkID.String()},
	}
	if err := c.postForm(ctx, "grading result", pathSubmitResult, homeworkReferer(courseID, homeworkID), form, &out); err != nil {
		return out, err
	}
	if out.ResultState == "" {
		return out, appErr.New(appErr.DataError).WithMessage("grading result: missing resultState")
	}
	return out, nil
}

func problemForm(t Target) url.Values {
	return url.Values{
		"problemId":  {t.ProblemID.String()},
		"homeworkId": {t.HomeworkID.String()},
		"courseId":   {t.CourseID.String()},
	}
}

func homeworkReferer(courseID, homeworkID ID) string {
	return "/course/" + courseID.String() + "/homework/" + homeworkID.String()
}

func (c *Client) headers(token, refererPath string) map[string]string {
	base := c.http.BaseURL()
	origin := base.Scheme + "://" + base.Host
	return map[string]string{
		csrfHeader:       token,
		"Referer":        origin + refererPath,
		"Origin":         origin,
		"Sec-Fetch-Dest": "empty",
		"Sec-Fetch-Mode": "cors",
		"Sec-Fetch-Site": "same-origin",
	}
}

type listEnvelope struct {
	List json.RawMessage `json:"list"`
}

// postList decodes {"list": [...]}; a missing or null list is an empty result.
func (c *Client) postList(ctx context.Context, op, path, referer string, form url.Values, out interface{}) error {
	var env listEnvelope
	if err := c.postForm(ctx, op, path, referer, form, &env); err != nil {
		return err
	}
	if len(env.List) == 0 || bytes.Equal(env.List, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.List, out); err != nil {
		return appErr.Malformed(err, op)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, op, path, referer string, form url.Values, out interface{}) error {
	token := c.CSRFToken()
	if token == "" {
		return appErr.New(appErr.CsrfTokenMissing).WithDetail("op", op)
	}
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:          http.MethodPost,
		URL:             path,
		Headers:         c.headers(token, referer),
		Form:            form,
		FollowRedirects: true,
	})
	if err != nil {
		logger.Warn(ctx, "oj request failed", zap.String("op", op), zap.Error(err))
		return appErr.Network(err, op)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "oj request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return appErr.Protocol(op, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		logger.Warn(ctx, "oj response not json", zap.String("op", op), zap.Int("bytes", len(resp.Body)))
		return appErr.Malformed(err, op)
	}
	return nil
}
