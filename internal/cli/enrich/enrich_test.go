package enrich_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/enrich"
	"ojassist/internal/cli/ojtest"
	"ojassist/pkg/testutil"
)

func TestWorkers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		configured, n, want int
	}{
		{configured: 0, n: 20, want: 5},
		{configured: -3, n: 20, want: 5},
		{configured: 3, n: 20, want: 3},
		{configured: 50, n: 20, want: 10},
		{configured: 8, n: 2, want: 2},
		{configured: 5, n: 0, want: 1},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, enrich.Workers(tt.configured, tt.n), tt.want)
	}
}

func TestRunKeepsOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()
	inputs := []int{1, 2, 3, 4, 5}
	boom := errors.New("boom")

	items, err := enrich.Run(context.Background(), 5, inputs, func(_ context.Context, n int) (string, error) {
		// Later inputs finish first.
		time.Sleep(time.Duration(6-n) * 5 * time.Millisecond)
		if n == 3 {
			return "", boom
		}
		return fmt.Sprintf("v%d", n), nil
	})
	testutil.MustNoError(t, err, "run")
	if len(items) != len(inputs) {
		t.Fatalf("items = %d, want %d", len(items), len(inputs))
	}
	for i, it := range items {
		testutil.AssertEqual(t, it.Input, inputs[i])
		if inputs[i] == 3 {
			testutil.AssertTrue(t, errors.Is(it.Err, boom), "failing item keeps its error")
			testutil.AssertEqual(t, it.Value, "")
			continue
		}
		testutil.MustNoError(t, it.Err, "item")
		testutil.AssertEqual(t, it.Value, fmt.Sprintf("v%d", inputs[i]))
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	t.Parallel()
	inputs := make([]int, 40)
	var inFlight, peak int32
	_, err := enrich.Run(context.Background(), 3, inputs, func(context.Context, int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	})
	testutil.MustNoError(t, err, "run")
	if peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items, err := enrich.Run(ctx, 2, []int{1, 2, 3}, func(context.Context, int) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	testutil.AssertEqual(t, len(items), 3)
}

type problemSource struct {
	mu          sync.Mutex
	failDetails map[api.ID]bool
	failRecords map[api.ID]bool
}

func (p *problemSource) ProblemDetails(_ context.Context, t api.Target) (api.ProblemDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDetails[t.ProblemID] {
		return api.ProblemDetails{}, errors.New("details down")
	}
	return api.ProblemDetails{Difficulty: 2, Content: "statement " + t.ProblemID.String()}, nil
}

func (p *problemSource) SubmissionRecords(_ context.Context, t api.Target) ([]api.SubmissionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRecords[t.ProblemID] {
		return nil, errors.New("records down")
	}
	return []api.SubmissionRecord{{RecordID: "r" + t.ProblemID}}, nil
}

func TestProblems(t *testing.T) {
	t.Parallel()
	src := &problemSource{
		failDetails: map[api.ID]bool{"2": true},
		failRecords: map[api.ID]bool{"3": true},
	}
	problems := []api.Problem{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	rows, err := enrich.Problems(context.Background(), src, 5, "7", "101", problems)
	testutil.MustNoError(t, err, "problems")
	testutil.AssertEqual(t, len(rows), 3)

	testutil.MustNoError(t, rows[0].Err, "row 1")
	testutil.AssertEqual(t, rows[0].Details.Content, "statement 1")
	testutil.AssertEqual(t, len(rows[0].Records), 1)

	testutil.AssertTrue(t, rows[1].Err != nil, "details failure is reported")
	testutil.AssertTrue(t, rows[1].Details.Empty(), "details failure yields the placeholder")
	testutil.AssertEqual(t, rows[1].Problem.ID, api.ID("2"))

	testutil.MustNoError(t, rows[2].Err, "records failure keeps the row")
	testutil.AssertEqual(t, rows[2].Details.Content, "statement 3")
	testutil.AssertEqual(t, len(rows[2].Records), 0)
}

func TestHomeworksAgainstFakeOJ(t *testing.T) {
	t.Parallel()
	srv := ojtest.New(ojtest.Options{})
	defer srv.Close()
	d := ojtest.DefaultData()
	d.FailingHomework = map[string]bool{"102": true}
	srv.SetData(d)

	client := api.New(srv.HTTPClient(t))
	sess := srv.Session(time.Now())
	testutil.MustNoError(t, client.Install(&sess), "install")

	hws, err := client.ListHomeworks(context.Background(), "7")
	testutil.MustNoError(t, err, "list homeworks")
	rows, err := enrich.Homeworks(context.Background(), client, 5, "7", hws)
	testutil.MustNoError(t, err, "enrich homeworks")
	testutil.AssertEqual(t, len(rows), len(hws))

	for i, row := range rows {
		testutil.AssertEqual(t, row.Homework.ID, hws[i].ID)
		if row.Homework.ID == "102" {
			testutil.AssertTrue(t, row.Err != nil, "failing homework reports an error")
			testutil.AssertTrue(t, row.Details.Empty(), "failing homework has a placeholder")
			continue
		}
		testutil.MustNoError(t, row.Err, "homework "+row.Homework.ID.String())
		testutil.AssertFalse(t, row.Details.Empty(), "details present")
	}
	testutil.AssertEqual(t, srv.Calls("/api/homework/general/"), 3)
}
