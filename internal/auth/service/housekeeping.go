package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// Job is one named background task. Run must be an idle no-op when there
// is nothing to do; it is called on every tick.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs background jobs, each on its own ticker, independently of
// request handling. Every job also runs once right after Start.
type Scheduler struct {
	Logger *slog.Logger
	Jobs   []Job

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler for jobs.
func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		Logger: logger,
		Jobs:   jobs,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches one worker per job. It is non-blocking and should be
// called once the database is ready. Call Stop to shut the workers down.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	var wg sync.WaitGroup
	for _, job := range s.Jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.Logger.Warn("background job disabled", "job", job.Name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(job)
		}()
		s.Logger.Info("background job started", "job", job.Name, "interval", job.Interval)
	}

	go func() {
		wg.Wait()
		close(s.doneCh)
	}()
}

// Stop signals every worker and blocks until any in-progress run has
// finished. Without a prior Start it returns at once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.once.Do(func() { close(s.stopCh) })
	if !started {
		return
	}
	<-s.doneCh
	s.Logger.Info("background jobs stopped")
}

func (s *Scheduler) run(job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(job)

	for {
		select {
		case <-ticker.C:
			s.runOnce(job)
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce runs job a single time, outside the tickers. Admin tooling and
// tests use it.
func (s *Scheduler) RunOnce(name string) bool {
	for _, job := range s.Jobs {
		if job.Name == name {
			s.runOnce(job)
			return true
		}
	}
	return false
}

func (s *Scheduler) runOnce(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log := s.Logger.With("job", job.Name)
	ctx = slogx.WithContext(ctx, log)

	start := time.Now()
	err := job.Run(ctx)
	jobRuns.WithLabelValues(job.Name, outcome(err)).Inc()
	if err != nil {
		log.Error("background job failed", "error", err, "duration", time.Since(start))
		return
	}
	log.Debug("background job finished", "duration", time.Since(start))
}

// KeyRotationJob checks daily whether the active signing key is due.
func KeyRotationJob(keys *KeyRotationService, interval time.Duration) Job {
	return Job{
		Name:     "key_rotation",
		Interval: interval,
		Run: func(ctx context.Context) error {
			rotated, err := keys.RotateIfDue(ctx)
			if err != nil {
				return err
			}
			if rotated {
				slogx.FromContext(ctx).Info("signing key rotation completed")
			}
			return nil
		},
	}
}

// SsoStateSweepJob deletes abandoned federation states.
func SsoStateSweepJob(fed *FederationService, interval time.Duration) Job {
	return Job{
		Name:     "sso_state_sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := fed.SweepExpiredStates(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				slogx.FromContext(ctx).Info("expired sso states deleted", "count", n)
			}
			return nil
		},
	}
}

// CleanupJob deletes expired authorization codes, parked authorization
// requests and token pairs. Each deletion is independent; a failure in one
// does not stop the others.
func CleanupJob(st store.Store, interval time.Duration) Job {
	return Job{
		Name:     "expired_record_cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			log := slogx.FromContext(ctx)
			now := time.Now()

			steps := []struct {
				what string
				fn   func(context.Context, time.Time) (int64, error)
			}{
				{"authorization_codes", st.AuthorizationCodes().DeleteExpiredAuthorizationCodes},
				{"pending_authorizations", st.PendingAuthorizations().DeleteExpiredPendingAuthorizations},
				{"tokens", st.Tokens().DeleteExpiredTokens},
			}

			var firstErr error
			for _, step := range steps {
				n, err := step.fn(ctx, now)
				if err != nil {
					log.Error("cleanup failed", "table", step.what, "error", err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if n > 0 {
					log.Info("expired records deleted", "table", step.what, "count", n)
				}
			}
			return firstErr
		},
	}
}
