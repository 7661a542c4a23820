package display_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/display"
	"ojassist/internal/cli/enrich"
	"ojassist/internal/cli/submit"
	"ojassist/pkg/testutil"

	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestTableAlignsWideRunes(t *testing.T) {
	tbl := display.NewTable("ID", "Name", "X")
	tbl.Row("1", "数据", "a")
	tbl.Row("22", "ab", "b")
	testutil.AssertEqual(t, tbl.Len(), 2)

	var buf bytes.Buffer
	testutil.MustNoError(t, tbl.Render(&buf), "render")
	want := "ID  Name  X\n" +
		"--  ----  -\n" +
		"1   数据  a\n" +
		"22  ab    b\n"
	testutil.AssertEqual(t, buf.String(), want)
}

func TestTruncate(t *testing.T) {
	testutil.AssertEqual(t, display.Truncate("short", 10), "short")
	testutil.AssertEqual(t, display.Truncate("abcdefghijkl", 8), "abcde...")
	got := display.Truncate("数据结构与算法课程", 9)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("Truncate = %q, want an ellipsis", got)
	}
}

func TestHomeworksView(t *testing.T) {
	now := time.Date(2031, 3, 5, 12, 0, 0, 0, time.Local)
	due := api.DateTime{Time: now.Add(48 * time.Hour)}
	rows := []enrich.HomeworkRow{
		{
			Homework: api.Homework{ID: "101", Name: "Lab 1", DueDate: due, ProblemCount: 2, State: api.HomeworkActive},
			Details:  api.HomeworkDetails{CurrentScore: 50, TotalScore: 200, AttemptRate: 0.5},
		},
		{
			Homework: api.Homework{ID: "102", Name: "Lab 2", State: api.HomeworkActive},
			Err:      errors.New("down"),
		},
	}

	var buf bytes.Buffer
	p := display.NewPrinter(&buf).WithClock(func() time.Time { return now })
	testutil.MustNoError(t, p.Homeworks(rows), "homeworks")
	out := buf.String()
	for _, want := range []string{"50/200", "50%", "Active", "No Due Date", "Lab 2"} {
		testutil.AssertTrue(t, strings.Contains(out, want), "homework view mentions "+want)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	testutil.AssertEqual(t, len(lines), 4)
	testutil.AssertTrue(t, strings.Contains(lines[3], "-"), "placeholder row shows dashes")

	buf.Reset()
	testutil.MustNoError(t, p.Homeworks(nil), "empty homeworks")
	testutil.AssertEqual(t, buf.String(), "No homework found.\n")
}

func TestProblemsView(t *testing.T) {
	rows := []enrich.ProblemRow{
		{
			Problem: api.Problem{ID: "1001", Name: "A+B"},
			Details: api.ProblemDetails{Difficulty: 1, TimeLimit: map[string]float64{"Java": 1000}, MemoryLimit: map[string]float64{"Java": 256}},
			Records: []api.SubmissionRecord{{RecordID: "9001", ResultState: api.VerdictWA, Score: 50}},
		},
		{Problem: api.Problem{ID: "1002", Name: "Sorting"}},
	}
	var buf bytes.Buffer
	testutil.MustNoError(t, display.NewPrinter(&buf).Problems(rows, "java"), "problems")
	out := buf.String()
	for _, want := range []string{"A+B", "Noob", "1000ms", "256MB", "WA", "50", "Sorting"} {
		testutil.AssertTrue(t, strings.Contains(out, want), "problem view mentions "+want)
	}
}

func TestRecordsLimit(t *testing.T) {
	records := make([]api.SubmissionRecord, 8)
	for i := range records {
		records[i] = api.SubmissionRecord{RecordID: api.ID(string(rune('a' + i))), ResultState: api.VerdictAC}
	}
	count := func(limit int) int {
		var buf bytes.Buffer
		testutil.MustNoError(t, display.NewPrinter(&buf).Records(records, limit), "records")
		// Header and rule lines.
		return len(strings.Split(strings.TrimSpace(buf.String()), "\n")) - 2
	}
	testutil.AssertEqual(t, count(0), display.DefaultRecordsToShow)
	testutil.AssertEqual(t, count(2), 2)
	testutil.AssertEqual(t, count(99), display.MaxRecordsToShow)

	var buf bytes.Buffer
	testutil.MustNoError(t, display.NewPrinter(&buf).Records(nil, 3), "no records")
	testutil.AssertEqual(t, buf.String(), "No submissions yet.\n")
}

func TestGradingView(t *testing.T) {
	tests := []struct {
		name string
		res  submit.Result
		want []string
	}{
		{
			name: "unchanged",
			res:  submit.Result{Status: submit.StatusUnchanged},
			want: []string{"identical to the last submission"},
		},
		{
			name: "timeout",
			res:  submit.Result{Status: submit.StatusTimeout, RecordID: "42", Attempts: 10, LastErr: errors.New("bad json")},
			want: []string{"Record 42", "10 checks", "last error: bad json"},
		},
		{
			name: "accepted",
			res: submit.Result{
				Status: submit.StatusTerminal, RecordID: "42", Verdict: api.VerdictAC, Score: 100, AllTestsPassed: true,
				Cases: []api.CaseResult{{State: api.VerdictAC, Time: 12, Memory: 20}, {State: api.VerdictAC}},
			},
			want: []string{"Record 42: AC", "score 100", "12ms", "20MB", "All tests passed."},
		},
		{
			name: "wrong answer",
			res:  submit.Result{Status: submit.StatusTerminal, RecordID: "43", Verdict: api.VerdictWA, Score: 50},
			want: []string{"Record 43: WA", "score 50"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			testutil.MustNoError(t, display.NewPrinter(&buf).Grading(tt.res), "grading")
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Fatalf("output %q does not contain %q", out, w)
				}
			}
			if !tt.res.AllTestsPassed && strings.Contains(out, "All tests passed") {
				t.Fatalf("output claims success: %q", out)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	got := display.PlainText("<p>Compute <b>a+b</b>.</p><p>1 &lt;= a, b &lt;= 10</p><script>alert(1)</script>")
	testutil.AssertTrue(t, strings.Contains(got, "Compute a+b."), "keeps text")
	testutil.AssertTrue(t, strings.Contains(got, "1 <= a, b <= 10"), "unescapes entities")
	testutil.AssertTrue(t, strings.Contains(got, "\n"), "keeps paragraph breaks")
	testutil.AssertFalse(t, strings.Contains(got, "<b>"), "drops tags")
	testutil.AssertFalse(t, strings.Contains(got, "alert"), "drops scripts")
	testutil.AssertEqual(t, display.PlainText(""), "")
}

func TestExportName(t *testing.T) {
	testutil.AssertEqual(t, display.ExportName("101", "1002", "Sorting / Merge"), "hw101_p1002_Sorting_Merge.md")
	testutil.AssertEqual(t, display.ExportName("1", "2", "../../etc"), "hw1_p2_etc.md")
	testutil.AssertEqual(t, display.ExportName("1", "2", "???"), "hw1_p2_problem.md")
	testutil.AssertEqual(t, display.ExportName("1", "2", "数据结构"), "hw1_p2_数据结构.md")
}

func TestExportProblem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "problems")
	target := api.Target{CourseID: "7", HomeworkID: "101", ProblemID: "1001"}
	details := api.ProblemDetails{
		Difficulty:  1,
		TimeLimit:   map[string]float64{"java": 1000, "cpp": 500},
		MemoryLimit: map[string]float64{"java": 256},
		PublicTags:  []string{"math"},
		Content:     "<p>Compute a+b.</p>",
	}
	path, err := display.ExportProblem(dir, target, api.Problem{ID: "1001", Name: "A+B"}, details)
	testutil.MustNoError(t, err, "export")
	testutil.AssertEqual(t, filepath.Base(path), "hw101_p1001_A_B.md")

	data, err := os.ReadFile(path)
	testutil.MustNoError(t, err, "read export")
	text := string(data)
	for _, want := range []string{"# A+B", "- Homework: 101", "| cpp | 500ms | - |", "| java | 1000ms | 256MB |", "Tags: math", "Compute a+b."} {
		if !strings.Contains(text, want) {
			t.Fatalf("export %q does not contain %q", text, want)
		}
	}
	testutil.AssertTrue(t, strings.Index(text, "| cpp") < strings.Index(text, "| java"), "languages sorted")
}
