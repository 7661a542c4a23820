package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/auth"
	"ojassist/internal/cli/command"
	"ojassist/internal/cli/config"
	"ojassist/internal/cli/display"
	"ojassist/internal/cli/submit"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Deps are the collaborators a REPL session drives.
type Deps struct {
	Client   *api.Client
	Auth     *auth.Manager
	Engine   *submit.Engine
	Printer  *display.Printer
	Commands map[string]command.Command
	Config   config.Config
}

// Session holds REPL state.
type Session struct {
	deps      Deps
	selection map[string]string
	ready     bool
	ask       func(prompt string) (string, error)
	rl        *readline.Instance
}

func New(deps Deps) *Session {
	s := &Session{
		deps: deps,
		selection: map[string]string{
			command.CtxLanguage: deps.Config.Language,
		},
	}
	s.ask = s.readAnswer
	return s
}

// WithPrompter replaces the interactive question source.
func (s *Session) WithPrompter(ask func(prompt string) (string, error)) *Session {
	if ask != nil {
		s.ask = ask
	}
	return s
}

// Select sets a REPL selection such as the current course.
func (s *Session) Select(key, value string) {
	s.selection[key] = value
}

// Selection returns the current value of a selection key.
func (s *Session) Selection(key string) string {
	return s.selection[key]
}

func (s *Session) Run(ctx context.Context, in io.ReadCloser, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		Stdin:           in,
		Stdout:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl

	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.deps.Printer.Line("bye")
			return nil
		}
		if err := s.Execute(ctx, line); err != nil {
			s.report(ctx, err)
		}
	}
}

func (s *Session) prompt() string {
	var parts []string
	if v := s.selection[command.CtxCourse]; v != "" {
		parts = append(parts, "c:"+v)
	}
	if v := s.selection[command.CtxHomework]; v != "" {
		parts = append(parts, "hw:"+v)
	}
	if v := s.selection[command.CtxProblem]; v != "" {
		parts = append(parts, "p:"+v)
	}
	if len(parts) == 0 {
		return "oj> "
	}
	return "oj[" + strings.Join(parts, "/") + "]> "
}

// Execute runs one command line.
func (s *Session) Execute(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0] {
	case "help":
		s.printHelp()
		return nil
	case "set":
		return s.handleSet(tokens[1:])
	case "show":
		return s.handleShow(tokens[1:])
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}

	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.deps.Commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}

	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	args, err := command.Resolve(cmd, params, s.selection)
	if err != nil {
		return err
	}

	ctx = logger.WithCommand(ctx, key)
	if cmd.RequiresSession {
		if err := s.ensureSession(ctx); err != nil {
			return err
		}
	}
	err = s.dispatch(ctx, cmd, args)
	if appErr.GetCategory(err) == appErr.CategoryAuth {
		s.ready = false
	}
	return err
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if field.Context != "" && s.selection[field.Context] != "" {
			continue
		}
		value, err := s.ask(field.Prompt + ": ")
		if err != nil {
			return err
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) ensureSession(ctx context.Context) error {
	if s.ready {
		return nil
	}
	source, err := s.deps.Auth.EnsureSession(ctx)
	if err != nil {
		return err
	}
	s.ready = true
	logger.Info(ctx, "session ready", zap.String("source", string(source)))
	if source == auth.SourceLogin {
		s.deps.Printer.Line("Logged in.")
	}
	return nil
}

// Credentials asks for the CAS username and password when the config has none.
func (s *Session) Credentials(ctx context.Context) (auth.Credentials, error) {
	creds := auth.Credentials{Username: s.deps.Config.Username, Password: s.deps.Config.Password}
	if creds.Username == "" {
		v, err := s.ask("username: ")
		if err != nil {
			return creds, err
		}
		creds.Username = strings.TrimSpace(v)
	}
	if creds.Password == "" {
		v, err := s.askSecret("password: ")
		if err != nil {
			return creds, err
		}
		creds.Password = v
	}
	return creds, nil
}

func (s *Session) readAnswer(prompt string) (string, error) {
	if s.rl == nil {
		return "", appErr.New(appErr.RequiredFieldEmpty).WithMessagef("no input available for %q", strings.TrimSpace(prompt))
	}
	s.rl.SetPrompt(prompt)
	defer s.rl.SetPrompt(s.prompt())
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return line, nil
}

func (s *Session) askSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if s.rl == nil || !term.IsTerminal(fd) {
		return s.ask(prompt)
	}
	s.deps.Printer.Line("%s", strings.TrimSpace(prompt))
	secret, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("read password failed: %w", err)
	}
	return string(secret), nil
}

func (s *Session) confirm(prompt string) (bool, error) {
	answer, err := s.ask(prompt + " [y/N] ")
	if err != nil {
		return false, err
	}
	ok, err := command.ParseBool(answer)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set course|homework|problem|language|workdir|timeout <value>")
	}
	value := args[1]
	switch args[0] {
	case "course":
		if _, err := api.ParseID(value); err != nil {
			return err
		}
		s.selection[command.CtxCourse] = value
		delete(s.selection, command.CtxHomework)
		delete(s.selection, command.CtxProblem)
	case "homework":
		if _, err := api.ParseID(value); err != nil {
			return err
		}
		s.selection[command.CtxHomework] = value
		delete(s.selection, command.CtxProblem)
	case "problem":
		if _, err := api.ParseID(value); err != nil {
			return err
		}
		s.selection[command.CtxProblem] = value
	case "language":
		s.selection[command.CtxLanguage] = value
	case "workdir":
		info, err := os.Stat(value)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("not a directory: %s", value)
		}
		s.deps.Config.WorkDir = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.deps.Client.HTTP().SetTimeout(d)
	default:
		return fmt.Errorf("unknown set target: %s", args[0])
	}
	s.deps.Printer.Line("%s set to %s", args[0], value)
	return nil
}

func (s *Session) handleShow(args []string) error {
	what := "selection"
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "selection":
		for _, k := range []string{command.CtxCourse, command.CtxHomework, command.CtxProblem, command.CtxLanguage} {
			v := s.selection[k]
			if v == "" {
				v = "-"
			}
			s.deps.Printer.Line("%-9s %s", k+":", v)
		}
	case "config":
		cfg := s.deps.Config
		s.deps.Printer.Line("baseURL:   %s", cfg.BaseURL)
		s.deps.Printer.Line("cache:     %s", cfg.Cache.Backend)
		s.deps.Printer.Line("workDir:   %s", cfg.WorkDir)
		s.deps.Printer.Line("exportDir: %s", cfg.ExportDir)
		s.deps.Printer.Line("workers:   %d", cfg.MaxWorkers)
	default:
		return fmt.Errorf("usage: show selection|config")
	}
	return nil
}

func (s *Session) report(ctx context.Context, err error) {
	logger.Warn(ctx, "command failed", zap.Error(err), zap.Int("code", int(appErr.GetCode(err))))
	category := appErr.GetCategory(err)
	if category == appErr.CategoryNone || category == appErr.CategoryInternal {
		s.deps.Printer.Line("error: %v", err)
		return
	}
	s.deps.Printer.Line("error [%s]: %v", category, err)
}

func (s *Session) printHelp() {
	s.deps.Printer.Line("usage: <service> <action> key=value ...")
	for _, key := range command.Keys(s.deps.Commands) {
		s.deps.Printer.Line("  %-16s %s", key, s.deps.Commands[key].Summary)
	}
	s.deps.Printer.Line("system: help | exit | set course|homework|problem|language|workdir|timeout <v> | show selection|config")
	s.deps.Printer.Line("examples:")
	s.deps.Printer.Line("  homework list course=42")
	s.deps.Printer.Line("  submit create problem=7 file=Main.java")
}
