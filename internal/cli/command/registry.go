package command

import (
	"fmt"
	"sort"

	"ojassist/internal/cli/api"
	appErr "ojassist/pkg/errors"
)

// Context keys a field can be filled from.
const (
	CtxCourse   = "course"
	CtxHomework = "homework"
	CtxProblem  = "problem"
	CtxLanguage = "language"
)

var (
	courseField   = Field{Name: "course", Aliases: []string{"course_id", "c"}, Prompt: "course_id", Type: FieldID, Required: true, Context: CtxCourse}
	homeworkField = Field{Name: "homework", Aliases: []string{"homework_id", "hw"}, Prompt: "homework_id", Type: FieldID, Required: true, Context: CtxHomework}
	problemField  = Field{Name: "problem", Aliases: []string{"problem_id", "p"}, Prompt: "problem_id", Type: FieldID, Required: true, Context: CtxProblem}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service: "session",
			Action:  "login",
			Summary: "log in through CAS and cache the session",
		},
		{
			Service: "session",
			Action:  "logout",
			Summary: "forget the cached session",
		},
		{
			Service: "session",
			Action:  "show",
			Summary: "show the cached session",
		},
		{
			Service:         "course",
			Action:          "list",
			Summary:         "list enrolled courses",
			RequiresSession: true,
		},
		{
			Service:         "homework",
			Action:          "list",
			Summary:         "list the homework of a course",
			RequiresSession: true,
			Fields:          []Field{courseField},
		},
		{
			Service:         "problem",
			Action:          "list",
			Summary:         "list the problems of a homework",
			RequiresSession: true,
			Fields:          []Field{courseField, homeworkField},
		},
		{
			Service:         "problem",
			Action:          "show",
			Summary:         "show a problem with its recent submissions",
			RequiresSession: true,
			Fields: []Field{
				courseField, homeworkField, problemField,
				{Name: "records", Prompt: "records", Type: FieldInt},
			},
		},
		{
			Service:         "problem",
			Action:          "export",
			Summary:         "save a problem statement to a markdown file",
			RequiresSession: true,
			Fields: []Field{
				courseField, homeworkField, problemField,
				{Name: "dir", Prompt: "export_dir", Type: FieldString},
			},
		},
		{
			Service:         "submit",
			Action:          "create",
			Summary:         "upload a solution and wait for the verdict",
			RequiresSession: true,
			Confirm:         true,
			Fields: []Field{
				courseField, homeworkField, problemField,
				{Name: "file", Aliases: []string{"source_file", "f"}, Prompt: "source_file", Type: FieldFile},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Context: CtxLanguage},
				{Name: "force", Prompt: "force", Type: FieldBool},
			},
		},
		{
			Service:         "submit",
			Action:          "status",
			Summary:         "poll the verdict of an uploaded record",
			RequiresSession: true,
			Fields: []Field{
				courseField, homeworkField,
				{Name: "record", Aliases: []string{"record_id", "id"}, Prompt: "record_id", Type: FieldID, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns the registry keys sorted for help output.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Args are the resolved, typed arguments of one invocation.
type Args struct {
	api.Target
	RecordID api.ID
	File     string
	Language string
	Dir      string
	Records  int
	Force    bool
}

// Resolve applies aliases and REPL context to params, then turns them into
// typed Args. Identifiers are validated here and never re-checked later.
func Resolve(cmd Command, params Params, ctxValues map[string]string) (Args, error) {
	params.Canonicalize(cmd.Fields)
	for _, f := range cmd.Fields {
		if params.Get(f.Name) == "" && f.Context != "" {
			if v := ctxValues[f.Context]; v != "" {
				params.Set(f.Name, v)
			}
		}
	}
	if missing := Missing(cmd, params); len(missing) > 0 {
		return Args{}, appErr.New(appErr.RequiredFieldEmpty).
			WithMessagef("missing %s", missing[0].Name).
			WithDetail("field", missing[0].Name)
	}

	var args Args
	for _, f := range cmd.Fields {
		raw := params.Get(f.Name)
		if raw == "" {
			continue
		}
		switch f.Type {
		case FieldID:
			id, err := api.ParseID(raw)
			if err != nil {
				return Args{}, appErr.ValidationError(f.Name, "invalid id")
			}
			switch f.Name {
			case "course":
				args.CourseID = id
			case "homework":
				args.HomeworkID = id
			case "problem":
				args.ProblemID = id
			case "record":
				args.RecordID = id
			}
		case FieldInt:
			n, err := ParseInt(raw)
			if err != nil || n < 0 {
				return Args{}, appErr.ValidationError(f.Name, fmt.Sprintf("not a number: %q", raw))
			}
			if f.Name == "records" {
				args.Records = n
			}
		case FieldBool:
			b, err := ParseBool(raw)
			if err != nil {
				return Args{}, appErr.ValidationError(f.Name, fmt.Sprintf("not a boolean: %q", raw))
			}
			if f.Name == "force" {
				args.Force = b
			}
		case FieldFile:
			args.File = raw
		case FieldString:
			switch f.Name {
			case "language":
				args.Language = raw
			case "dir":
				args.Dir = raw
			}
		}
	}
	return args, nil
}

// Missing lists required fields without a value.
func Missing(cmd Command, params Params) []Field {
	var out []Field
	for _, f := range cmd.Fields {
		if f.Required && params.Get(f.Name) == "" {
			out = append(out, f)
		}
	}
	return out
}
