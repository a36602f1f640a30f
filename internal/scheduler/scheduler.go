// Package scheduler runs named background jobs on fixed intervals, with
// single-flight guarding so a scheduled run and a manually triggered run of
// the same job never overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumora-ai/lumora/internal/log"
)

// Job is one recurring background task. Name doubles as the single-flight
// key: all runs of a job serialize on it.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner owns the background jobs for the process lifecycle. Start spawns
// one ticker goroutine per job; Stop cancels them and waits.
type Runner struct {
	logger log.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	cancel  context.CancelFunc
	started bool

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a Runner.
func New(logger log.Logger) (*Runner, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Runner{logger: logger, jobs: make(map[string]Job)}, nil
}

// Add registers a job. Must be called before Start.
func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner already started")
	}
	if _, dup := r.jobs[job.Name]; dup {
		return fmt.Errorf("duplicate job %q", job.Name)
	}
	r.jobs[job.Name] = job
	return nil
}

// Start launches the ticker loops. The derived context is canceled by Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner already started")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		if job.Interval <= 0 {
			// Trigger-only jobs run via RunNow.
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.logger.Info("scheduler started", "jobs", len(r.jobs))
	return nil
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx, job)
		}
	}
}

// RunNow triggers a registered job immediately. Concurrent triggers of the
// same job coalesce into one execution; callers share its error.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return r.run(ctx, job)
}

func (r *Runner) run(ctx context.Context, job Job) error {
	_, err, _ := r.group.Do(job.Name, func() (any, error) {
		start := time.Now()
		err := job.Run(ctx)
		if err != nil {
			r.logger.Error("job failed", "job", job.Name, "elapsed", time.Since(start), "error", err)
			return nil, err
		}
		r.logger.Debug("job completed", "job", job.Name, "elapsed", time.Since(start))
		return nil, nil
	})
	return err
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
