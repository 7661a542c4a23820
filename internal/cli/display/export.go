package display

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"ojassist/internal/cli/api"
	appErr "ojassist/pkg/errors"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	breakTags    = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>|</h[1-6]>|</pre>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	unsafeName   = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
)

// PlainText strips the HTML of a problem statement, keeping paragraph breaks.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	withBreaks := breakTags.ReplaceAllString(content, "$0\n")
	text := html.UnescapeString(strictPolicy.Sanitize(withBreaks))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return blankLines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// ExportName builds hw<homework>_p<problem>_<name>.md with a filesystem-safe name.
func ExportName(homeworkID, problemID api.ID, name string) string {
	safe := strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_")
	if safe == "" {
		safe = "problem"
	}
	safe = Truncate(safe, 60)
	return fmt.Sprintf("hw%s_p%s_%s.md", homeworkID, problemID, safe)
}

// ExportProblem writes the problem statement and limits to dir and returns the path.
func ExportProblem(dir string, t api.Target, problem api.Problem, d api.ProblemDetails) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.ProblemExportFailed, "create export dir failed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", problem.Name)
	fmt.Fprintf(&b, "- Course: %s\n- Homework: %s\n- Problem: %s\n", t.CourseID, t.HomeworkID, problem.ID)
	fmt.Fprintf(&b, "- Difficulty: %s\n- IO: %s\n", d.Difficulty, d.IOMode)
	if d.ProblemType != "" {
		fmt.Fprintf(&b, "- Type: %s\n", d.ProblemType)
	}
	if len(d.PublicTags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(d.PublicTags, ", "))
	}
	if len(d.TimeLimit) > 0 {
		b.WriteString("\n| Language | Time | Memory |\n|---|---|---|\n")
		for _, lang := range sortedKeys(d.TimeLimit) {
			fmt.Fprintf(&b, "| %s | %sms | %s |\n", lang, api.FormatScore(d.TimeLimit[lang]), limitText(d.MemoryLimit, lang, "MB"))
		}
	}
	if text := PlainText(d.Content); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	path := filepath.Join(dir, ExportName(t.HomeworkID, problem.ID, problem.Name))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", appErr.Wrapf(err, appErr.ProblemExportFailed, "write %s failed", path)
	}
	return path, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
