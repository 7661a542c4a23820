package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErr "ojassist/pkg/errors"
)

// ID is the canonical identifier for courses, homework, problems and records.
// The OJ sends some ids as numbers and some as strings; both decode to ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", raw, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

// ParseID resolves user input into an ID.
func ParseID(value string) (ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", appErr.ValidationError("id", "required")
	}
	if strings.ContainsAny(value, " \t/?&") {
		return "", appErr.ValidationError("id", "contains invalid characters")
	}
	return ID(value), nil
}

// Target scopes a call to one problem inside one homework inside one course.
type Target struct {
	CourseID   ID
	HomeworkID ID
	ProblemID  ID
}

// DateTime decodes the OJ "2006-01-02 15:04:05" local timestamps.
type DateTime struct {
	time.Time
}

const DateTimeLayout = "2006-01-02 15:04:05"

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			d.Time = time.Time{}
			return nil
		}
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.ParseInLocation(DateTimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d DateTime) String() string {
	if d.IsZero() {
		return "No Due Date"
	}
	return d.Format(DateTimeLayout)
}

// Course is one entry of the enrolled-course list.
type Course struct {
	ID          ID     `json:"course_id"`
	Name        string `json:"course_name"`
	Description string `json:"description"`
}

// HomeworkState is the server-side homework lifecycle.
type HomeworkState int

const (
	HomeworkUnknown    HomeworkState = 0
	HomeworkNotStarted HomeworkState = 1
	HomeworkActive     HomeworkState = 2
	HomeworkClosed     HomeworkState = 3
	HomeworkFinished   HomeworkState = 4
)

// Homework is one assignment of a course.
type Homework struct {
	ID           ID            `json:"homeworkId"`
	Name         string        `json:"homeworkName"`
	DueDate      DateTime      `json:"nextDate"`
	ProblemCount int           `json:"problemsCount"`
	State        HomeworkState `json:"state"`
}

// HomeworkDetails carries the per-student progress of a homework.
type HomeworkDetails struct {
	CurrentScore float64 `json:"currentScore"`
	TotalScore   float64 `json:"totalScore"`
	AttemptRate  float64 `json:"attemptRate"`
}

// Empty reports a placeholder with no progress data.
func (d HomeworkDetails) Empty() bool {
	return d == HomeworkDetails{}
}

// DisplayStatus is the derived status shown in the homework table.
type DisplayStatus string

const (
	StatusUnknown  DisplayStatus = "Unknown"
	StatusPending  DisplayStatus = "Pending"
	StatusActive   DisplayStatus = "Active"
	StatusClosed   DisplayStatus = "Closed"
	StatusFinished DisplayStatus = "Finished"
	StatusExpired  DisplayStatus = "Expired"
	StatusComplete DisplayStatus = "Complete"
)

// DisplayStatus combines the server state, the due date and the score.
func (h Homework) DisplayStatus(now time.Time, details HomeworkDetails) DisplayStatus {
	status := StatusUnknown
	switch h.State {
	case HomeworkNotStarted:
		status = StatusPending
	case HomeworkActive:
		status = StatusActive
	case HomeworkClosed:
		status = StatusClosed
	case HomeworkFinished:
		status = StatusFinished
	}
	if h.State == HomeworkActive && !h.DueDate.IsZero() && now.After(h.DueDate.Time) {
		status = StatusExpired
	}
	if details.TotalScore > 0 && details.CurrentScore == details.TotalScore {
		status = StatusComplete
	}
	return status
}

// Problem is one entry of a homework problem list.
type Problem struct {
	ID   ID     `json:"problemId"`
	Name string `json:"problemName"`
}

// IOMode tells how a solution reads input.
type IOMode int

const (
	IOModeStdio IOMode = 0
	IOModeFile  IOMode = 1
)

func (m IOMode) String() string {
	if m == IOModeFile {
		return "file"
	}
	return "stdio"
}

// Difficulty ranges 0 (unknown) to 5.
type Difficulty int

var difficultyNames = []string{"Unknown", "Noob", "Easy", "Normal", "Hard", "Demon"}

func (d Difficulty) String() string {
	if d < 0 || int(d) >= len(difficultyNames) {
		return difficultyNames[0]
	}
	return difficultyNames[d]
}

// ProblemDetails is the full problem statement and limits.
type ProblemDetails struct {
	Difficulty  Difficulty         `json:"difficulty"`
	TimeLimit   map[string]float64 `json:"timeLimit"`
	MemoryLimit map[string]float64 `json:"memoryLimit"`
	IOMode      IOMode             `json:"ioMode"`
	ProblemType string             `json:"problemType"`
	PublicTags  []string           `json:"publicTags"`
	Content     string             `json:"content"`
}

// Empty reports a placeholder with no detail data.
func (d ProblemDetails) Empty() bool {
	return d.TimeLimit == nil && d.MemoryLimit == nil && d.Content == "" &&
		d.Difficulty == 0 && d.ProblemType == "" && len(d.PublicTags) == 0
}

// LimitFor looks a language up in a per-language limit map. The OJ spells
// languages its own way ("Java", "C++"), so keys match case-insensitively.
func LimitFor(limits map[string]float64, language string) (float64, bool) {
	if v, ok := limits[language]; ok {
		return v, true
	}
	for k, v := range limits {
		if strings.EqualFold(k, language) {
			return v, true
		}
	}
	return 0, false
}

// TimeLimitFor returns the time limit of a language and whether it is declared.
func (d ProblemDetails) TimeLimitFor(language string) (time.Duration, bool) {
	ms, ok := LimitFor(d.TimeLimit, language)
	if !ok || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// Verdict is a judge result code.
type Verdict string

const (
	VerdictAC      Verdict = "AC"
	VerdictWA      Verdict = "WA"
	VerdictRE      Verdict = "RE"
	VerdictCE      Verdict = "CE"
	VerdictTLE     Verdict = "TLE"
	VerdictMLE     Verdict = "MLE"
	VerdictJudging Verdict = "JG"
)

// InProgress reports the judging marker.
func (v Verdict) InProgress() bool {
	return v == VerdictJudging
}

// SourceFile is one file of a submission.
type SourceFile struct {
	Name string `json:"fileName"`
	Code string `json:"code"`
}

// SubmissionRecord is one past submission, newest first in lists.
type SubmissionRecord struct {
	RecordID       ID           `json:"recordId"`
	ResultState    Verdict      `json:"resultState"`
	Score          float64      `json:"score"`
	SubmissionTime string       `json:"submissionTime"`
	Files          []SourceFile `json:"codeList"`
}

// CaseResult is the verdict of one test case.
type CaseResult struct {
	State  Verdict `json:"state"`
	Time   float64 `json:"time,omitempty"`
	Memory float64 `json:"memory,omitempty"`
}

// GradingResult is the judge answer for one record.
type GradingResult struct {
	ResultState Verdict      `json:"resultState"`
	Score       float64      `json:"score"`
	ResultList  []CaseResult `json:"resultList"`
}

// AllPassed requires the overall verdict and every case to be AC.
func (r GradingResult) AllPassed() bool {
	if r.ResultState != VerdictAC {
		return false
	}
	for _, c := range r.ResultList {
		if c.State != VerdictAC {
			return false
		}
	}
	return true
}

// FormatScore prints integral scores without decimals.
func FormatScore(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
