package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMisfireGrace is how late a scheduled fire may start before it is
// dropped instead of run.
const DefaultMisfireGrace = 300 * time.Second

const defaultTick = time.Second

// RunFunc executes one batch cycle over the given report ids (nil = all
// changed reports).
type RunFunc func(ctx context.Context, ids []string) error

// RunnerConfig holds the trigger settings.
type RunnerConfig struct {
	// Cron is the 5-field schedule expression.
	Cron string `yaml:"cron" mapstructure:"cron"`
	// MisfireGrace is the late-start cutoff (0 = DefaultMisfireGrace).
	MisfireGrace time.Duration `yaml:"misfire_grace" mapstructure:"misfire_grace"`
}

// RunnerOption configures the CronRunner.
type RunnerOption func(*CronRunner)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) RunnerOption {
	return func(r *CronRunner) {
		r.now = now
	}
}

// WithTick overrides the poll interval.
func WithTick(tick time.Duration) RunnerOption {
	return func(r *CronRunner) {
		r.tick = tick
	}
}

// CronRunner fires the batch on a cron schedule with explicit
// single-flight semantics: at most one cycle runs at a time, every
// elapsed window collapses to at most one fire, and fires that would
// start later than the misfire grace are dropped.
type CronRunner struct {
	schedule *CronSchedule
	run      RunFunc
	grace    time.Duration
	tick     time.Duration
	now      func() time.Time

	// sem is the single-instance gate shared by scheduled and manual runs.
	sem chan struct{}

	mu        sync.Mutex
	nextFire  time.Time
	lastFired time.Time
	running   bool
}

// NewCronRunner creates a runner for the given schedule. An empty cron
// expression disables scheduled fires; manual triggers still run.
func NewCronRunner(cfg RunnerConfig, run RunFunc, opts ...RunnerOption) (*CronRunner, error) {
	var schedule *CronSchedule
	if cfg.Cron != "" {
		var err error
		schedule, err = ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = DefaultMisfireGrace
	}
	r := &CronRunner{
		schedule: schedule,
		run:      run,
		grace:    cfg.MisfireGrace,
		tick:     defaultTick,
		now:      time.Now,
		sem:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Scheduled reports whether the runner carries a cron schedule.
func (r *CronRunner) Scheduled() bool {
	return r.schedule != nil
}

// Loop drives the schedule until ctx is canceled. Without a schedule it
// returns immediately.
func (r *CronRunner) Loop(ctx context.Context) {
	if r.schedule == nil {
		zap.L().Info("scheduler: no cron configured, scheduling disabled")
		return
	}
	r.mu.Lock()
	r.nextFire = r.schedule.Next(r.now())
	next := r.nextFire
	r.mu.Unlock()
	zap.L().Info("scheduler: cron loop started", zap.Time("next_fire", next))

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("scheduler: cron loop stopped")
			return
		case <-ticker.C:
			r.onTick(ctx)
		}
	}
}

// onTick advances the schedule state by one poll. Every fire moment that
// has elapsed since the last tick collapses into a single decision.
func (r *CronRunner) onTick(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	fireAt := r.nextFire
	if fireAt.IsZero() || now.Before(fireAt) {
		r.mu.Unlock()
		return
	}
	r.nextFire = r.schedule.Next(now)
	r.mu.Unlock()

	if now.Sub(fireAt) > r.grace {
		zap.L().Warn("scheduler: misfire past grace, dropping run",
			zap.Time("fire_at", fireAt), zap.Duration("late", now.Sub(fireAt)))
		return
	}

	select {
	case r.sem <- struct{}{}:
	default:
		zap.L().Warn("scheduler: previous cycle still running, skipping fire",
			zap.Time("fire_at", fireAt))
		return
	}

	r.begin(now)
	go func() {
		defer r.end()
		if err := r.run(ctx, nil); err != nil {
			zap.L().Error("scheduler: scheduled cycle failed", zap.Error(err))
		}
	}()
}

// Trigger queues an immediate one-off cycle for the given ids and returns
// its job id and scheduled time. The cycle shares the single-instance
// gate with scheduled runs, so it starts once any active cycle finishes.
func (r *CronRunner) Trigger(ids []string) (jobID string, scheduledFor time.Time) {
	scheduledFor = r.now()
	jobID = fmt.Sprintf("manual_preprocess_%d", scheduledFor.Unix())

	go func() {
		r.sem <- struct{}{}
		defer r.end()
		r.begin(r.now())

		zap.L().Info("scheduler: manual cycle started",
			zap.String("job_id", jobID), zap.Int("count", len(ids)))
		if err := r.run(context.Background(), ids); err != nil {
			zap.L().Error("scheduler: manual cycle failed",
				zap.String("job_id", jobID), zap.Error(err))
		}
	}()
	return jobID, scheduledFor
}

func (r *CronRunner) begin(at time.Time) {
	r.mu.Lock()
	r.running = true
	r.lastFired = at
	r.mu.Unlock()
}

func (r *CronRunner) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	<-r.sem
}

// NextFire returns the next scheduled fire time.
func (r *CronRunner) NextFire() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextFire
}
