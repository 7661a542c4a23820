package repl

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/command"
	"ojassist/internal/cli/display"
	"ojassist/internal/cli/enrich"
	"ojassist/internal/cli/submit"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"go.uber.org/zap"
)

func (s *Session) dispatch(ctx context.Context, cmd command.Command, args command.Args) error {
	switch cmd.Key() {
	case "session login":
		return s.login(ctx)
	case "session logout":
		return s.logout(ctx)
	case "session show":
		return s.showSession(ctx)
	case "course list":
		return s.listCourses(ctx)
	case "homework list":
		return s.listHomeworks(ctx, args)
	case "problem list":
		return s.listProblems(ctx, args)
	case "problem show":
		return s.showProblem(ctx, args)
	case "problem export":
		return s.exportProblem(ctx, args)
	case "submit create":
		return s.submit(ctx, cmd, args)
	case "submit status":
		return s.status(ctx, args)
	}
	return fmt.Errorf("command %s has no handler", cmd.Key())
}

func (s *Session) login(ctx context.Context) error {
	if err := s.deps.Auth.Login(ctx); err != nil {
		s.ready = false
		return err
	}
	s.ready = true
	s.deps.Printer.Line("Logged in.")
	return nil
}

func (s *Session) logout(ctx context.Context) error {
	if err := s.deps.Auth.Logout(ctx); err != nil {
		return err
	}
	s.ready = false
	s.deps.Printer.Line("Session cleared.")
	return nil
}

func (s *Session) showSession(ctx context.Context) error {
	sess, err := s.deps.Auth.Cached(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		s.deps.Printer.Line("No cached session.")
		return nil
	}
	age := time.Since(sess.AcquiredAt).Truncate(time.Second)
	names := make([]string, 0, len(sess.Cookies))
	for _, c := range sess.Cookies {
		names = append(names, c.Name)
	}
	s.deps.Printer.Line("acquired: %s (%s ago)", sess.AcquiredAt.Format(api.DateTimeLayout), age)
	s.deps.Printer.Line("cookies:  %s", strings.Join(names, ", "))
	s.deps.Printer.Line("csrf:     %s", mask(sess.CSRFToken))
	s.deps.Printer.Line("active:   %t", s.ready)
	return nil
}

func mask(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return strings.Repeat("*", len(token))
}

func (s *Session) listCourses(ctx context.Context) error {
	courses, err := s.deps.Client.ListCourses(ctx)
	if err != nil {
		return err
	}
	if err := s.deps.Printer.Courses(courses); err != nil {
		return err
	}
	if s.deps.Config.AutoSelectCourse && s.selection[command.CtxCourse] == "" && len(courses) > 0 {
		s.selection[command.CtxCourse] = courses[0].ID.String()
		s.deps.Printer.Line("Selected course %s.", courses[0].Name)
	}
	return nil
}

func (s *Session) listHomeworks(ctx context.Context, args command.Args) error {
	hws, err := s.deps.Client.ListHomeworks(ctx, args.CourseID)
	if err != nil {
		return err
	}
	rows, err := enrich.Homeworks(ctx, s.deps.Client, s.deps.Config.MaxWorkers, args.CourseID, hws)
	if err != nil {
		return err
	}
	s.selection[command.CtxCourse] = args.CourseID.String()
	if err := s.deps.Printer.Homeworks(rows); err != nil {
		return err
	}
	if s.deps.Config.AutoSelectHomework && s.selection[command.CtxHomework] == "" {
		if hw, ok := CurrentHomework(rows, time.Now()); ok {
			s.selection[command.CtxHomework] = hw.ID.String()
			s.deps.Printer.Line("Selected homework %s.", hw.Name)
		}
	}
	return nil
}

// CurrentHomework picks the active homework due soonest.
func CurrentHomework(rows []enrich.HomeworkRow, now time.Time) (api.Homework, bool) {
	for _, r := range rows {
		if r.Homework.DisplayStatus(now, r.Details) == api.StatusActive {
			return r.Homework, true
		}
	}
	return api.Homework{}, false
}

func (s *Session) listProblems(ctx context.Context, args command.Args) error {
	problems, err := s.deps.Client.ListProblems(ctx, args.CourseID, args.HomeworkID)
	if err != nil {
		return err
	}
	rows, err := enrich.Problems(ctx, s.deps.Client, s.deps.Config.MaxWorkers, args.CourseID, args.HomeworkID, problems)
	if err != nil {
		return err
	}
	s.selection[command.CtxCourse] = args.CourseID.String()
	s.selection[command.CtxHomework] = args.HomeworkID.String()
	return s.deps.Printer.Problems(rows, s.language(args))
}

func (s *Session) findProblem(ctx context.Context, t api.Target) (enrich.ProblemRow, error) {
	problems, err := s.deps.Client.ListProblems(ctx, t.CourseID, t.HomeworkID)
	if err != nil {
		return enrich.ProblemRow{}, err
	}
	for _, p := range problems {
		if p.ID == t.ProblemID {
			rows, err := enrich.Problems(ctx, s.deps.Client, 1, t.CourseID, t.HomeworkID, []api.Problem{p})
			if err != nil {
				return enrich.ProblemRow{}, err
			}
			return rows[0], nil
		}
	}
	return enrich.ProblemRow{}, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", t.ProblemID.String())
}

func (s *Session) showProblem(ctx context.Context, args command.Args) error {
	row, err := s.findProblem(ctx, args.Target)
	if err != nil {
		return err
	}
	s.selection[command.CtxProblem] = args.ProblemID.String()
	records := args.Records
	if records == 0 {
		records = s.deps.Config.MaxRecordsToShow
	}
	return s.deps.Printer.ProblemDetail(row, records)
}

func (s *Session) exportProblem(ctx context.Context, args command.Args) error {
	row, err := s.findProblem(ctx, args.Target)
	if err != nil {
		return err
	}
	if row.Err != nil {
		return appErr.Wrapf(row.Err, appErr.ProblemExportFailed, "problem details unavailable")
	}
	dir := args.Dir
	if dir == "" {
		dir = s.deps.Config.ExportDir
	}
	path, err := display.ExportProblem(dir, args.Target, row.Problem, row.Details)
	if err != nil {
		return err
	}
	s.deps.Printer.Line("Saved %s", path)
	return nil
}

func (s *Session) language(args command.Args) string {
	if args.Language != "" {
		return args.Language
	}
	if v := s.selection[command.CtxLanguage]; v != "" {
		return v
	}
	return s.deps.Config.Language
}

func (s *Session) submit(ctx context.Context, cmd command.Command, args command.Args) error {
	lang := s.language(args)
	file := args.File
	if file == "" {
		file = submit.DefaultFileName(lang)
	}
	content, err := submit.ReadSource(s.deps.Config.WorkDir, file)
	if err != nil {
		return err
	}

	var timeLimit time.Duration
	details, err := s.deps.Client.ProblemDetails(ctx, args.Target)
	if err != nil {
		logger.Warn(ctx, "problem details unavailable, using default time limit", zap.Error(err))
	} else if tl, ok := details.TimeLimitFor(lang); ok {
		timeLimit = tl
	}

	if cmd.Confirm {
		ok, err := s.confirm(fmt.Sprintf("Submit %s (%s) to problem %s?", filepath.Base(file), lang, args.ProblemID))
		if err != nil {
			return err
		}
		if !ok {
			s.deps.Printer.Line("Cancelled.")
			return nil
		}
	}

	s.deps.Printer.Line("Submitting %s ...", filepath.Base(file))
	res, err := s.deps.Engine.Submit(ctx, submit.Request{
		Target:    args.Target,
		Language:  lang,
		FileName:  filepath.Base(file),
		Content:   content,
		TimeLimit: timeLimit,
		Force:     args.Force,
	})
	if err != nil {
		return err
	}
	s.selection[command.CtxProblem] = args.ProblemID.String()
	return s.deps.Printer.Grading(res)
}

func (s *Session) status(ctx context.Context, args command.Args) error {
	res, err := s.deps.Engine.Poll(logger.WithRecordID(ctx, args.RecordID.String()), args.Target, args.RecordID, 0)
	if err != nil {
		return err
	}
	return s.deps.Printer.Grading(res)
}
