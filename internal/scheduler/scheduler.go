// Package scheduler runs the periodic maintenance jobs: session sweeps, token and device cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"clavionx/backend/internal/metrics"
	"clavionx/backend/internal/platform/clock"
)

// DefaultTimeout bounds a single run when a job sets none.
const DefaultTimeout = 5 * time.Minute

// Job is one named unit of periodic work.
type Job struct {
	Name string
	// Every runs the job on a fixed interval. Ignored when Daily is set.
	Every time.Duration
	// Daily runs the job once a day at this wall-clock offset from midnight (e.g. 2h for 02:00).
	Daily   *time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// At returns a Daily offset for hour:minute.
func At(hour, minute int) *time.Duration {
	d := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
	return &d
}

// Scheduler runs jobs until stopped. Each job runs in its own goroutine, so a run never overlaps
// the next run of the same job.
type Scheduler struct {
	clk  clock.Clock
	jobs []Job

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an empty Scheduler.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clk: clock.OrSystem(clk)}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	if j.Daily == nil && j.Every <= 0 {
		return fmt.Errorf("scheduler: job %s has no schedule", j.Name)
	}
	if j.Timeout <= 0 {
		j.Timeout = DefaultTimeout
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start launches every job. Runs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	log.Printf("scheduler: started %d jobs", len(s.jobs))
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	for {
		wait := s.nextDelay(j)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			RunOnce(ctx, j)
		}
	}
}

func (s *Scheduler) nextDelay(j Job) time.Duration {
	now := s.clk.Now()
	if j.Daily != nil {
		return NextDaily(now, *j.Daily).Sub(now)
	}
	return j.Every
}

// NextDaily returns the first instant strictly after now at offset from local midnight.
func NextDaily(now time.Time, offset time.Duration) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(offset)
	if !next.After(now) {
		next = time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Add(offset)
	}
	return next
}

// RunOnce runs j with its timeout and records the outcome. Failures are logged, never fatal.
func RunOnce(ctx context.Context, j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	if err := j.Run(runCtx); err != nil {
		metrics.JobRuns.WithLabelValues(j.Name, "error").Inc()
		log.Printf("scheduler: job %s failed after %s: %v", j.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	metrics.JobRuns.WithLabelValues(j.Name, "ok").Inc()
}

// Counted adapts a sweep that reports how many rows it changed, recording the count.
func Counted(name string, fn func(ctx context.Context) (int, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.JobAffected.WithLabelValues(name).Add(float64(n))
			log.Printf("scheduler: job %s affected %d rows", name, n)
		}
		return nil
	}
}
