package command_test

import (
	"testing"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/command"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/testutil"
)

func TestRegistryKeys(t *testing.T) {
	t.Parallel()
	reg := command.Registry()
	keys := command.Keys(reg)
	for _, want := range []string{"course list", "homework list", "problem list", "problem show", "problem export", "session login", "submit create", "submit status"} {
		if _, ok := reg[want]; !ok {
			t.Errorf("command %q not registered", want)
		}
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
	testutil.AssertFalse(t, reg["session login"].RequiresSession, "login must not require a session")
	testutil.AssertTrue(t, reg["submit create"].Confirm, "submit asks for confirmation")
}

func TestResolveFillsFromContext(t *testing.T) {
	t.Parallel()
	cmd := command.Registry()["submit create"]
	params := command.Params{"f": "Solution.java", "p": "1002", "force": "yes"}
	ctx := map[string]string{
		command.CtxCourse:   "7",
		command.CtxHomework: "101",
		command.CtxProblem:  "1001",
		command.CtxLanguage: "java",
	}

	args, err := command.Resolve(cmd, params, ctx)
	testutil.MustNoError(t, err, "resolve")
	testutil.AssertEqual(t, args.CourseID, api.ID("7"))
	testutil.AssertEqual(t, args.HomeworkID, api.ID("101"))
	// An explicit value beats the selection.
	testutil.AssertEqual(t, args.ProblemID, api.ID("1002"))
	testutil.AssertEqual(t, args.File, "Solution.java")
	testutil.AssertEqual(t, args.Language, "java")
	testutil.AssertTrue(t, args.Force, "force parsed")
	testutil.AssertFalse(t, params.Has("f"), "alias replaced by canonical name")
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	reg := command.Registry()
	tests := []struct {
		name   string
		cmd    string
		params command.Params
		ctx    map[string]string
		want   appErr.ErrorCode
	}{
		{
			name:   "missing homework",
			cmd:    "problem list",
			params: command.Params{"course": "7"},
			want:   appErr.RequiredFieldEmpty,
		},
		{
			name:   "invalid id",
			cmd:    "homework list",
			params: command.Params{"course": "7/../8"},
			want:   appErr.ValidationFailed,
		},
		{
			name:   "bad record count",
			cmd:    "problem show",
			params: command.Params{"course": "7", "homework": "1", "problem": "2", "records": "many"},
			want:   appErr.ValidationFailed,
		},
		{
			name:   "bad boolean",
			cmd:    "submit create",
			params: command.Params{"force": "maybe"},
			ctx:    map[string]string{command.CtxCourse: "7", command.CtxHomework: "1", command.CtxProblem: "2"},
			want:   appErr.ValidationFailed,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := command.Resolve(reg[tt.cmd], tt.params, tt.ctx)
			testutil.AssertCode(t, err, tt.want)
		})
	}
}

func TestMissing(t *testing.T) {
	t.Parallel()
	cmd := command.Registry()["submit status"]
	missing := command.Missing(cmd, command.Params{"course": "7"})
	if len(missing) != 2 || missing[0].Name != "homework" || missing[1].Name != "record" {
		t.Fatalf("missing = %+v", missing)
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]bool{"yes": true, "Y": true, "true": true, "1": true, "no": false, "": false, "off": false} {
		got, err := command.ParseBool(in)
		testutil.MustNoError(t, err, "parse "+in)
		testutil.AssertEqual(t, got, want)
	}
	if _, err := command.ParseBool("perhaps"); err == nil {
		t.Fatal("unknown spelling should fail")
	}
}
