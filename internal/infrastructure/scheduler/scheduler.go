// Package scheduler runs the background jobs of markboard at fixed
// intervals: the standings sync and the snapshot pruning.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// MinInterval is the shortest interval Register accepts.
const MinInterval = time.Second

// Job is one background task.
type Job interface {
	Name() string
	Description() string
	// Run gets a context cancelled on Stop or after the job timeout.
	Run(ctx context.Context) error
}

// Config configures New.
type Config struct {
	Logger *slog.Logger

	// Tick is how often due jobs are looked for (default 1s).
	Tick time.Duration

	// JobTimeout bounds a single run; 0 means no limit.
	JobTimeout time.Duration

	// RunOnStart runs every job right after Start instead of one interval later.
	RunOnStart bool
}

// JobInfo is what GET /api/v1/jobs reports per job.
type JobInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Every       string    `json:"every"`
	Running     bool      `json:"running"`
	NextRun     time.Time `json:"next_run"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastRun     *RunInfo  `json:"last_run,omitempty"`
}

// RunInfo describes a finished run.
type RunInfo struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

type entry struct {
	job      Job
	every    time.Duration
	next     time.Time
	busy     bool
	runs     int64
	failures int64
	last     *RunInfo
}

// Scheduler starts each registered job once its interval has passed. A job
// never overlaps with itself: a run that outlasts the interval delays the
// next one.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Scheduler{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "scheduler"),
		jobs: make(map[string]*entry),
	}
}

// Register adds job to run every interval. Intervals below MinInterval are
// raised to it.
func (s *Scheduler) Register(job Job, every time.Duration) error {
	if job == nil {
		return ErrNilJob
	}
	every = max(every, MinInterval)

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	s.jobs[name] = &entry{job: job, every: every, next: time.Now().Add(every)}

	s.log.Info("job registered", "job", name, "every", every.String())
	return nil
}

// Start runs the loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	now := time.Now()
	for _, e := range s.jobs {
		e.next = now.Add(e.every)
		if s.cfg.RunOnStart {
			e.next = now
		}
	}

	s.log.Info("scheduler started", "jobs", len(s.jobs))
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// ListJobs reports every job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Every:       e.every.String(),
			Running:     e.busy,
			NextRun:     e.next,
			Runs:        e.runs,
			Failures:    e.failures,
			LastRun:     e.last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		s.startDue(time.Now())
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) startDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	for _, e := range s.jobs {
		if e.busy || now.Before(e.next) {
			continue
		}
		e.busy = true
		e.next = now.Add(e.every)
		s.wg.Add(1)
		go s.run(e)
	}
}

func (s *Scheduler) run(e *entry) {
	defer s.wg.Done()

	ctx := s.ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	name := e.job.Name()
	started := time.Now()
	err := e.job.Run(ctx)
	took := time.Since(started)

	last := &RunInfo{StartedAt: started, Duration: took.String()}
	if err != nil {
		last.Error = err.Error()
		s.log.Error("job failed", "job", name, "duration", took.String(), "error", err)
	} else {
		s.log.Info("job completed", "job", name, "duration", took.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.busy = false
	e.runs++
	if err != nil {
		e.failures++
	}
	e.last = last
}
