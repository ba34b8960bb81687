// Package sync runs the planner's periodic background jobs: reminder
// ticks, the overdue sweep, quiet-hours draining, history cleanup and the
// statistics recount.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// JobState represents the current state of a job.
type JobState int

const (
	JobIdle JobState = iota
	JobRunning
	JobError
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobError:
		return "error"
	default:
		return "idle"
	}
}

// JobStatus holds the run state for a single job.
type JobStatus struct {
	Name    string
	State   JobState
	LastRun time.Time
	Runs    int
	Error   error
}

// StepFunc performs one run of a job. A positive return value overrides
// the job's interval for the next run only.
type StepFunc func(ctx context.Context) (time.Duration, error)

// Job is a periodically executed step.
type Job struct {
	Name     string
	Interval time.Duration

	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration

	// Immediate runs the job once as soon as the poller starts.
	Immediate bool

	Step StepFunc
}

// Every wraps a plain function as a fixed-interval job.
func Every(name string, interval time.Duration, fn func(ctx context.Context)) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Step: func(ctx context.Context) (time.Duration, error) {
			fn(ctx)
			return 0, nil
		},
	}
}

const defaultInterval = time.Minute

type jobEntry struct {
	job     Job
	trigger chan struct{}
}

// Poller runs registered jobs on their own schedule until its context ends.
type Poller struct {
	mu       gosync.Mutex
	jobs     []*jobEntry
	statuses map[string]*JobStatus
	running  bool

	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a new Poller.
func New(clock clockwork.Clock, logger *slog.Logger) *Poller {
	return &Poller{
		statuses: make(map[string]*JobStatus),
		clock:    clock,
		logger:   logger,
	}
}

// Register adds a job. Jobs registered after Run started are ignored.
func (p *Poller) Register(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.Step == nil {
		return fmt.Errorf("registering job %q: no step", job.Name)
	}
	if _, dup := p.statuses[job.Name]; dup {
		return fmt.Errorf("registering job %q: already registered", job.Name)
	}
	if job.Interval <= 0 {
		job.Interval = defaultInterval
	}

	p.jobs = append(p.jobs, &jobEntry{job: job, trigger: make(chan struct{}, 1)})
	p.statuses[job.Name] = &JobStatus{Name: job.Name, State: JobIdle}
	return nil
}

// Run starts a goroutine per job and blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("poller already running")
	}
	p.running = true
	jobs := append([]*jobEntry(nil), p.jobs...)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range jobs {
		g.Go(func() error {
			p.loop(gctx, entry)
			return nil
		})
	}
	return g.Wait()
}

// Trigger asks the named job to run now. It does not block.
func (p *Poller) Trigger(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.jobs {
		if entry.job.Name != name {
			continue
		}
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A run is already pending.
		}
		return true
	}
	return false
}

// TriggerAll asks every job to run now.
func (p *Poller) TriggerAll() {
	p.mu.Lock()
	names := make([]string, len(p.jobs))
	for i, entry := range p.jobs {
		names[i] = entry.job.Name
	}
	p.mu.Unlock()

	for _, name := range names {
		p.Trigger(name)
	}
}

// Statuses returns the status of every job in registration order.
func (p *Poller) Statuses() []JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]JobStatus, 0, len(p.jobs))
	for _, entry := range p.jobs {
		out = append(out, *p.statuses[entry.job.Name])
	}
	return out
}

// loop runs one job until ctx ends.
func (p *Poller) loop(ctx context.Context, entry *jobEntry) {
	next := entry.job.Interval
	if entry.job.Immediate {
		next = p.runOnce(ctx, entry)
	}

	timer := p.clock.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		case <-entry.trigger:
			if !timer.Stop() {
				// Drain a fire that raced with the trigger.
				select {
				case <-timer.Chan():
				default:
				}
			}
		}
		timer.Reset(p.runOnce(ctx, entry))
	}
}

// runOnce executes a single step and returns the delay before the next.
func (p *Poller) runOnce(ctx context.Context, entry *jobEntry) time.Duration {
	p.setStatus(entry.job.Name, JobRunning, nil)

	runCtx := ctx
	if entry.job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, entry.job.Timeout)
		defer cancel()
	}

	delay, err := entry.job.Step(runCtx)
	if err != nil {
		p.logger.Warn("background job failed",
			slog.String("job", entry.job.Name),
			slog.String("error", err.Error()),
		)
		p.setStatus(entry.job.Name, JobError, err)
	} else {
		p.setStatus(entry.job.Name, JobIdle, nil)
	}

	if delay <= 0 {
		delay = entry.job.Interval
	}
	return delay
}

// setStatus updates the status of a job.
func (p *Poller) setStatus(name string, state JobState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state != JobRunning {
		status.LastRun = p.clock.Now()
		status.Runs++
	}
}
