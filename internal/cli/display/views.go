package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/enrich"
	"ojassist/internal/cli/submit"

	"github.com/fatih/color"
)

const (
	DefaultRecordsToShow = 3
	MaxRecordsToShow     = 5
	nameWidth            = 40
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// VerdictPaint picks the colour of a verdict.
func VerdictPaint(v api.Verdict) func(a ...interface{}) string {
	switch v {
	case api.VerdictAC:
		return green
	case api.VerdictJudging:
		return yellow
	case "":
		return faint
	default:
		return red
	}
}

// StatusPaint picks the colour of a homework display status.
func StatusPaint(s api.DisplayStatus) func(a ...interface{}) string {
	switch s {
	case api.StatusComplete, api.StatusFinished:
		return green
	case api.StatusActive:
		return blue
	case api.StatusExpired, api.StatusClosed:
		return red
	case api.StatusPending:
		return yellow
	default:
		return faint
	}
}

// Printer writes the views of the CLI.
type Printer struct {
	w   io.Writer
	now func() time.Time
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, now: time.Now}
}

// WithClock replaces the clock used for due-date status.
func (p *Printer) WithClock(now func() time.Time) *Printer {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Printer) Line(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) Courses(courses []api.Course) error {
	if len(courses) == 0 {
		p.Line("No courses found.")
		return nil
	}
	t := NewTable("#", "ID", "Course", "Description")
	for i, c := range courses {
		t.Row(fmt.Sprint(i+1), c.ID.String(), Truncate(c.Name, nameWidth), Truncate(c.Description, nameWidth))
	}
	return t.Render(p.w)
}

func (p *Printer) Homeworks(rows []enrich.HomeworkRow) error {
	if len(rows) == 0 {
		p.Line("No homework found.")
		return nil
	}
	now := p.now()
	t := NewTable("#", "ID", "Homework", "Due", "Problems", "Score", "Attempted", "Status")
	for i, r := range rows {
		status := r.Homework.DisplayStatus(now, r.Details)
		score, attempted := "-", "-"
		if !r.Details.Empty() {
			score = api.FormatScore(r.Details.CurrentScore) + "/" + api.FormatScore(r.Details.TotalScore)
			attempted = fmt.Sprintf("%.0f%%", r.Details.AttemptRate*100)
		}
		values := []string{
			fmt.Sprint(i + 1),
			r.Homework.ID.String(),
			Truncate(r.Homework.Name, nameWidth),
			r.Homework.DueDate.String(),
			fmt.Sprint(r.Homework.ProblemCount),
			score,
			attempted,
			string(status),
		}
		paints := make([]func(a ...interface{}) string, len(values))
		paints[len(values)-1] = StatusPaint(status)
		t.PaintedRow(values, paints)
	}
	return t.Render(p.w)
}

func (p *Printer) Problems(rows []enrich.ProblemRow, language string) error {
	if len(rows) == 0 {
		p.Line("No problems found.")
		return nil
	}
	t := NewTable("#", "ID", "Problem", "Difficulty", "Time", "Memory", "Last", "Score")
	for i, r := range rows {
		last := api.Verdict("")
		score := "-"
		if len(r.Records) > 0 {
			last = r.Records[0].ResultState
			score = api.FormatScore(r.Records[0].Score)
		}
		lastText := string(last)
		if lastText == "" {
			lastText = "-"
		}
		values := []string{
			fmt.Sprint(i + 1),
			r.Problem.ID.String(),
			Truncate(r.Problem.Name, nameWidth),
			r.Details.Difficulty.String(),
			limitText(r.Details.TimeLimit, language, "ms"),
			limitText(r.Details.MemoryLimit, language, "MB"),
			lastText,
			score,
		}
		paints := make([]func(a ...interface{}) string, len(values))
		paints[6] = VerdictPaint(last)
		t.PaintedRow(values, paints)
	}
	return t.Render(p.w)
}

func limitText(limits map[string]float64, language, unit string) string {
	if v, ok := api.LimitFor(limits, language); ok {
		return api.FormatScore(v) + unit
	}
	return "-"
}

// ProblemDetail prints the problem header, limits and the most recent records.
func (p *Printer) ProblemDetail(row enrich.ProblemRow, maxRecords int) error {
	d := row.Details
	p.Line("%s  %s", color.New(color.Bold).Sprint(row.Problem.Name), faint("#"+row.Problem.ID.String()))
	if row.Err != nil {
		p.Line("details unavailable: %v", row.Err)
	}
	p.Line("Difficulty: %s   IO: %s   Type: %s", d.Difficulty, d.IOMode, orDash(d.ProblemType))
	if len(d.PublicTags) > 0 {
		p.Line("Tags: %s", strings.Join(d.PublicTags, ", "))
	}
	if len(d.TimeLimit) > 0 {
		limits := NewTable("Language", "Time", "Memory")
		for _, lang := range sortedKeys(d.TimeLimit) {
			limits.Row(lang, api.FormatScore(d.TimeLimit[lang])+"ms", limitText(d.MemoryLimit, lang, "MB"))
		}
		if err := limits.Render(p.w); err != nil {
			return err
		}
	}
	if content := strings.TrimSpace(PlainText(d.Content)); content != "" {
		p.Line("")
		p.Line("%s", content)
	}
	p.Line("")
	return p.Records(row.Records, maxRecords)
}

// Records prints up to limit submissions, newest first.
func (p *Printer) Records(records []api.SubmissionRecord, limit int) error {
	if limit <= 0 {
		limit = DefaultRecordsToShow
	}
	if limit > MaxRecordsToShow {
		limit = MaxRecordsToShow
	}
	if len(records) == 0 {
		p.Line("No submissions yet.")
		return nil
	}
	if len(records) > limit {
		records = records[:limit]
	}
	t := NewTable("Record", "Result", "Score", "Submitted", "Files")
	for _, r := range records {
		names := make([]string, 0, len(r.Files))
		for _, f := range r.Files {
			names = append(names, f.Name)
		}
		values := []string{r.RecordID.String(), string(r.ResultState), api.FormatScore(r.Score), r.SubmissionTime, strings.Join(names, ",")}
		t.PaintedRow(values, []func(a ...interface{}) string{nil, VerdictPaint(r.ResultState)})
	}
	return t.Render(p.w)
}

// Grading prints the outcome of a submission run.
func (p *Printer) Grading(res submit.Result) error {
	switch res.Status {
	case submit.StatusUnchanged:
		p.Line("%s", yellow("Source is identical to the last submission, nothing uploaded."))
		return nil
	case submit.StatusTimeout:
		p.Line("%s", yellow(fmt.Sprintf("Record %s is still being judged after %d checks, check the platform later.", res.RecordID, res.Attempts)))
		if res.LastErr != nil {
			p.Line("last error: %v", res.LastErr)
		}
		return nil
	}

	verdict := VerdictPaint(res.Verdict)(string(res.Verdict))
	p.Line("Record %s: %s  score %s", res.RecordID, verdict, api.FormatScore(res.Score))
	if len(res.Cases) > 0 {
		t := NewTable("Case", "Result", "Time", "Memory")
		for i, c := range res.Cases {
			values := []string{fmt.Sprint(i + 1), string(c.State), caseMetric(c.Time, "ms"), caseMetric(c.Memory, "MB")}
			t.PaintedRow(values, []func(a ...interface{}) string{nil, VerdictPaint(c.State)})
		}
		if err := t.Render(p.w); err != nil {
			return err
		}
	}
	if res.AllTestsPassed {
		p.Line("%s", green("All tests passed."))
	}
	return nil
}

func caseMetric(v float64, unit string) string {
	if v <= 0 {
		return "-"
	}
	return api.FormatScore(v) + unit
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
