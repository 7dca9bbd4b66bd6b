package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
)

// DefaultSweepSpec runs the sweep once a minute
const DefaultSweepSpec = "@every 1m"

// Sink receives instances that are ready to be created as tasks
type Sink interface {
	Handoff(ctx context.Context, sched *storage.Schedule, instances []recurrence.Instance) error
}

// LogSink only logs handed off instances
type LogSink struct {
	Logger *slog.Logger
}

// Handoff implements Sink
func (s LogSink) Handoff(_ context.Context, sched *storage.Schedule, instances []recurrence.Instance) error {
	for _, inst := range instances {
		s.Logger.Info("instance ready",
			"user_id", sched.UserID,
			"schedule_id", sched.ID,
			"scheduled", inst.Scheduled,
			"due", inst.Due,
			"overdue", inst.Overdue)
	}
	return nil
}

// SweepResult summarizes one pass over the stored schedules
type SweepResult struct {
	Schedules int // Schedules inspected
	HandedOff int // Instances given to the sink
	Failed    int // Schedules whose handoff or update failed
}

// Sweeper periodically plans every stored schedule and hands ready instances
// to a Sink. Delivery is at least once: the schedule is advanced only after
// the sink accepted its instances.
type Sweeper struct {
	storage storage.Storage
	engine  *recurrence.Engine
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
	spec    string

	cron *cron.Cron
}

// SweeperOption configures a Sweeper
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweeper's logger
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepSpec sets the cron expression or descriptor the sweep runs on
func WithSweepSpec(spec string) SweeperOption {
	return func(s *Sweeper) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithSink sets where ready instances go; defaults to a LogSink
func WithSink(sink Sink) SweeperOption {
	return func(s *Sweeper) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a sweeper; it does not run until Start is called
func NewSweeper(store storage.Storage, engine *recurrence.Engine, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	s := &Sweeper{
		storage: store,
		engine:  engine,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		spec:    DefaultSweepSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = recurrence.NewEngine(recurrence.WithLogger(s.logger))
	}
	if s.sink == nil {
		s.sink = LogSink{Logger: s.logger}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", s.spec, err)
	}
	return s, nil
}

// Start runs the sweep in the background
func (s *Sweeper) Start() {
	s.logger.Info("sweeper started",
		"spec", s.spec)
	s.cron.Start()
}

// Stop stops scheduling sweeps and waits for a running one to finish or ctx to end
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	res, err := s.Sweep(context.Background())
	if err != nil {
		s.logger.Error("sweep failed",
			"error", err)
		return
	}
	s.logger.Debug("sweep finished",
		"schedules", res.Schedules,
		"handed_off", res.HandedOff,
		"failed", res.Failed)
}

// Sweep plans every stored schedule once
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	schedules, err := s.storage.ListAllSchedules(ctx)
	if err != nil {
		return res, fmt.Errorf("listing schedules: %w", err)
	}

	now := s.now()
	for _, sched := range schedules {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Schedules++

		n, err := s.sweepOne(ctx, sched, now)
		res.HandedOff += n
		if err != nil {
			res.Failed++
			s.logger.Warn("failed to sweep schedule",
				"user_id", sched.UserID,
				"schedule_id", sched.ID,
				"error", err)
		}
	}
	return res, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, sched *storage.Schedule, now time.Time) (int, error) {
	plan := s.engine.Plan(sched.Config, recurrence.PlanInput{
		Now:           now,
		LastScheduled: sched.LastScheduled,
		Since:         mo.Some(sched.Created),
		PreviousOpen:  sched.PreviousOpen,
	})

	// Only a leading run of ready instances is handed off so LastScheduled
	// never jumps over an instance that is not due for creation yet.
	ready := 0
	for ready < len(plan) && plan[ready].Ready {
		ready++
	}
	if ready == 0 {
		return 0, nil
	}
	instances := plan[:ready]

	if err := s.sink.Handoff(ctx, sched, instances); err != nil {
		return 0, fmt.Errorf("handoff: %w", err)
	}

	etag := sched.ETag
	sched.LastScheduled = mo.Some(instances[len(instances)-1].Scheduled)
	if sched.Config.GenerationMode == recurrence.GenerateOnPrevComplete {
		sched.PreviousOpen = true
	}
	if _, err := s.storage.PutSchedule(ctx, sched, storage.PutOptions{IfMatch: etag}); err != nil {
		if storage.IsType(err, storage.ErrPreconditionFailed) {
			return len(instances), errors.Join(errors.New("schedule changed during sweep"), err)
		}
		return len(instances), fmt.Errorf("advancing schedule: %w", err)
	}

	s.logger.Info("schedule advanced",
		"user_id", sched.UserID,
		"schedule_id", sched.ID,
		"instances", len(instances),
		"last_scheduled", sched.LastScheduled.MustGet())
	return len(instances), nil
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
