package submit_test

import (
	"context"
	"testing"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/submit"
	"ojassist/pkg/testutil"
)

func TestInitialInterval(t *testing.T) {
	t.Parallel()
	p := submit.DefaultPolicy()
	tests := []struct {
		name      string
		timeLimit time.Duration
		want      time.Duration
	}{
		{name: "one second limit", timeLimit: time.Second, want: 3 * time.Second},
		{name: "tight limit polls sooner", timeLimit: 250 * time.Millisecond, want: 1500 * time.Millisecond},
		{name: "unknown limit uses default", timeLimit: 0, want: 3 * time.Second},
		{name: "capped at ceiling", timeLimit: 8 * time.Second, want: 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, p.InitialInterval(tt.timeLimit), tt.want)
		})
	}
}

func TestInitialIntervalFromProblemLimit(t *testing.T) {
	t.Parallel()
	d := api.ProblemDetails{TimeLimit: map[string]float64{"Java": 500}}
	tl, ok := d.TimeLimitFor("java")
	testutil.AssertTrue(t, ok, "limit declared under the OJ spelling")
	testutil.AssertEqual(t, submit.DefaultPolicy().InitialInterval(tl), 2*time.Second)
}

func TestNextIntervalGrowsAndCaps(t *testing.T) {
	t.Parallel()
	p := submit.DefaultPolicy()

	testutil.AssertEqual(t, p.NextInterval(2*time.Second, api.VerdictJudging), 3*time.Second)
	testutil.AssertEqual(t, p.NextInterval(2*time.Second, ""), 3*time.Second)
	testutil.AssertEqual(t, p.NextInterval(2*time.Second, api.VerdictAC), 2*time.Second)
	testutil.AssertEqual(t, p.NextInterval(8*time.Second, api.VerdictJudging), 10*time.Second)
	testutil.AssertEqual(t, p.NextInterval(12*time.Second, api.VerdictJudging), 10*time.Second)

	interval := p.InitialInterval(time.Second)
	for i := 0; i < 20; i++ {
		next := p.NextInterval(interval, api.VerdictJudging)
		if next < interval {
			t.Fatalf("interval shrank from %s to %s", interval, next)
		}
		if next > p.Ceiling {
			t.Fatalf("interval %s above ceiling %s", next, p.Ceiling)
		}
		interval = next
	}
	testutil.AssertEqual(t, interval, p.Ceiling)
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	t.Parallel()
	var p submit.Policy
	testutil.AssertEqual(t, p.InitialInterval(time.Second), submit.DefaultPolicy().InitialInterval(time.Second))
}

func TestSleepHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := submit.Sleep(ctx, time.Hour); err == nil {
		t.Fatal("cancelled sleep should return the context error")
	}
	testutil.MustNoError(t, submit.Sleep(context.Background(), time.Millisecond), "short sleep")
}
