// Package scheduler decides which process runs the batch and drives the
// periodic trigger once elected.
package scheduler

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/store"
)

// DefaultSettleDelay is how long a candidate waits after registering its
// lease so the other fleet members get their leases in before ranking.
const DefaultSettleDelay = 10 * time.Second

// ElectorConfig holds the election settings.
type ElectorConfig struct {
	// Index is the election lease index.
	Index string `yaml:"index" mapstructure:"index"`
	// SettleDelay is the wait between registering and ranking
	// (0 = DefaultSettleDelay).
	SettleDelay time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
}

// ElectorOption configures the Elector.
type ElectorOption func(*Elector)

// WithIdentity overrides the process identity (tests).
func WithIdentity(host string, pid int) ElectorOption {
	return func(e *Elector) {
		e.host, e.pid = host, pid
	}
}

// WithElectorSleep overrides the settle wait (tests).
func WithElectorSleep(sleep func(time.Duration)) ElectorOption {
	return func(e *Elector) {
		e.sleep = sleep
	}
}

// Elector performs optimistic first-writer-wins leader election: every
// process inserts a lease keyed host-pid, waits for the fleet to settle,
// and the process holding the earliest lease leads. There is no
// transactional claim, so two processes inserting within the same
// millisecond could in principle both see themselves first; the settle
// delay plus millisecond timestamps make that window negligible for this
// fleet size.
type Elector struct {
	store store.Store
	cfg   ElectorConfig
	host  string
	pid   int
	sleep func(time.Duration)
}

// NewElector creates an Elector identified by this process's host and pid.
func NewElector(st store.Store, cfg ElectorConfig, opts ...ElectorOption) *Elector {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	e := &Elector{
		store: st,
		cfg:   cfg,
		host:  host,
		pid:   os.Getpid(),
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Elect registers this process and reports whether it holds leadership.
// Any store failure demotes to follower rather than erroring: a process
// that cannot see the election index must not assume it leads.
func (e *Elector) Elect(ctx context.Context) bool {
	lease := model.LeaseDocument{
		Host:      e.host,
		PID:       e.pid,
		CreatedAt: time.Now().UnixMilli(),
	}

	if err := e.store.Insert(ctx, e.cfg.Index, lease.DocID(), lease); err != nil {
		zap.L().Warn("scheduler: lease registration failed, standing by",
			zap.String("candidate", lease.DocID()), zap.Error(err))
		return false
	}

	e.sleep(e.cfg.SettleDelay)

	q := store.NewQuery().Sort("created_at", "asc").Size(1)
	hits, err := e.store.Search(ctx, e.cfg.Index, q)
	if err != nil {
		zap.L().Warn("scheduler: election ranking failed, standing by",
			zap.String("candidate", lease.DocID()), zap.Error(err))
		return false
	}
	if len(hits) == 0 {
		zap.L().Warn("scheduler: no leases visible, standing by",
			zap.String("candidate", lease.DocID()))
		return false
	}

	leader := hits[0].ID == lease.DocID()
	if leader {
		zap.L().Info("scheduler: elected leader", zap.String("candidate", lease.DocID()))
	} else {
		zap.L().Info("scheduler: standing by as follower",
			zap.String("candidate", lease.DocID()), zap.String("leader", hits[0].ID))
	}
	return leader
}
