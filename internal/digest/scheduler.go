package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/muilab/notigpt/internal/logger"
	"github.com/robfig/cron/v3"
)

// Runner produces a digest for a mode. *Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, mode Mode) (*Digest, error)
}

// Notifier tells the user a digest is ready.
type Notifier interface {
	SendDigestReady(ctx context.Context, digestID, mode, text string) error
}

// Pruner drops stored digests created before cutoff. *HistoryStore satisfies it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Schedule is one periodic digest run.
type Schedule struct {
	Spec   string
	Mode   Mode
	Notify bool
}

// Scheduler triggers pipeline runs on cron specs. A run that is still going
// when its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	runner   Runner
	notifier Notifier
	logger   *logger.Logger

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler. notifier may be nil.
func NewScheduler(runner Runner, notifier Notifier, logger *logger.Logger) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		parser:   parser,
		runner:   runner,
		notifier: notifier,
		logger:   logger.WithComponent("digest-scheduler"),
	}
}

// Add registers a schedule. Specs accept an optional seconds field and
// descriptors such as "@every 2h".
func (s *Scheduler) Add(sched Schedule) error {
	if _, err := s.parser.Parse(sched.Spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", sched.Spec, err)
	}

	id, err := s.cron.AddFunc(sched.Spec, func() {
		s.runScheduled(context.Background(), sched)
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	s.logger.Info("digest scheduled",
		slog.String("spec", sched.Spec),
		slog.String("mode", string(sched.Mode)),
		slog.Bool("notify", sched.Notify),
		slog.Int("entry_id", int(id)))
	return nil
}

// AddRetention registers a job that prunes digests older than keep.
func (s *Scheduler) AddRetention(spec string, pruner Pruner, keep time.Duration) error {
	if keep <= 0 {
		return fmt.Errorf("retention must be positive, got %s", keep)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		_ = s.prune(context.Background(), pruner, keep)
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	return nil
}

func (s *Scheduler) prune(ctx context.Context, pruner Pruner, keep time.Duration) error {
	return s.logger.LogOperation(ctx, "prune_digests", func() error {
		n, err := pruner.Prune(ctx, time.Now().Add(-keep))
		if err != nil {
			return err
		}
		s.logger.Debug("pruned digests", slog.Int64("removed", n))
		return nil
	})
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduled digest still running at shutdown")
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, sched Schedule) {
	ctx = logger.WithOperation(ctx, "scheduled_digest")
	log := s.logger.WithContext(ctx)

	d, err := s.runner.Run(ctx, sched.Mode)
	if err != nil {
		s.logger.LogError(ctx, err, "scheduled digest failed", slog.String("mode", string(sched.Mode)))
		return
	}

	if !sched.Notify || s.notifier == nil {
		return
	}
	if d.UnitCount == 0 {
		log.Debug("nothing to notify about")
		return
	}

	if err := s.notifier.SendDigestReady(ctx, d.ID, string(d.Mode), d.Text); err != nil {
		log.Warn("failed to send digest push", slog.String("error", err.Error()))
	}
}
