package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lumora-ai/lumora/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestStartStop(t *testing.T) {
	r := newTestRunner(t)

	var runs atomic.Int64
	err := r.Add(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(time.Millisecond):
		}
	}
	r.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job still running after Stop")
	}
}

func TestRunNowSingleFlight(t *testing.T) {
	r := newTestRunner(t)

	var (
		running atomic.Int64
		peak    atomic.Int64
		runs    atomic.Int64
	)
	err := r.Add(Job{
		Name: "analyze",
		Run: func(context.Context) error {
			n := running.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			runs.Add(1)
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RunNow(context.Background(), "analyze")
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrent runs = %d, want 1", peak.Load())
	}
	if runs.Load() > 2 {
		t.Errorf("runs = %d, concurrent triggers should coalesce", runs.Load())
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	r := newTestRunner(t)
	if err := r.RunNow(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRunNowPropagatesError(t *testing.T) {
	r := newTestRunner(t)
	boom := errors.New("boom")
	if err := r.Add(Job{Name: "fail", Run: func(context.Context) error { return boom }}); err != nil {
		t.Fatal(err)
	}
	if err := r.RunNow(context.Background(), "fail"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestAddValidation(t *testing.T) {
	r := newTestRunner(t)
	if err := r.Add(Job{Name: "", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Add(Job{Name: "a", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Job{Name: "a", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected error for duplicate name")
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()
	if err := r.Add(Job{Name: "late", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected error for Add after Start")
	}
}
