// Package integrator implements the background consolidation loop: four
// independent periodic tasks (summarization, importance re-evaluation,
// redundancy detection, relationship linking) that share one repository and
// run on their own interval. Each task loop selects over a ticker and
// ctx.Done; per-tenant mutual exclusion is a distributed lock keyed by
// (task, tenant), so at most one instance of a task runs per tenant across
// the whole deployment.
package integrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/store"
)

// Config holds the consolidation loop's tunables.
type Config struct {
	SummarizationInterval time.Duration
	ImportanceInterval    time.Duration
	RedundancyInterval    time.Duration
	RelationshipInterval  time.Duration
	BatchSize             int
	MinImportance         float64
	SimilarityThreshold   float64
	LockTTL               time.Duration
}

// DefaultConfig returns the stock interval and threshold defaults.
func DefaultConfig() Config {
	return Config{
		SummarizationInterval: time.Hour,
		ImportanceInterval:    30 * time.Minute,
		RedundancyInterval:    2 * time.Hour,
		RelationshipInterval:  time.Hour,
		BatchSize:             100,
		MinImportance:         0.1,
		SimilarityThreshold:   0.85,
		LockTTL:               10 * time.Minute,
	}
}

// TenantLister supplies the set of tenants the integrator should visit on
// each tick. Applications typically back this with a distinct tenant
// registry; it is declared narrowly here since multi-tenant discovery is
// outside this package's concern.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Summarizer produces a short summary for a memory's content. Nil means the
// first-N-words fallback is used for every memory.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// Integrator owns the four consolidation tasks and their per-tenant locks.
type Integrator struct {
	Config     Config
	Memories   store.MemoryRepository
	Locks      store.LockRepository
	Tenants    TenantLister
	Summarizer Summarizer
	Logger     *logrus.Entry

	skipped map[string]*int64
	mu      sync.Mutex
}

// New constructs an Integrator; Logger defaults to the standard logrus
// logger tagged "component=integrator".
func New(cfg Config, memories store.MemoryRepository, locks store.LockRepository, tenants TenantLister) *Integrator {
	return &Integrator{
		Config:   cfg,
		Memories: memories,
		Locks:    locks,
		Tenants:  tenants,
		Logger:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "integrator"),
		skipped:  make(map[string]*int64),
	}
}

// Run launches all four task loops and blocks until ctx is cancelled.
func (in *Integrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	tasks := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context, tenantID string) (bool, error)
	}{
		{"summarization", in.Config.SummarizationInterval, in.runSummarizationPass},
		{"importance", in.Config.ImportanceInterval, in.runImportancePass},
		{"redundancy", in.Config.RedundancyInterval, in.runRedundancyPass},
		{"relationships", in.Config.RelationshipInterval, in.runRelationshipPass},
	}
	for _, t := range tasks {
		wg.Add(1)
		go func(name string, interval time.Duration, run func(context.Context, string) (bool, error)) {
			defer wg.Done()
			in.taskLoop(ctx, name, interval, run)
		}(t.name, t.interval, t.run)
	}
	wg.Wait()
}

func (in *Integrator) taskLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context, string) (bool, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.tick(ctx, name, run)
		}
	}
}

// tick visits every tenant once, skipping (and counting) any tenant whose
// lock for this task is still held from a prior, still-running tick.
func (in *Integrator) tick(ctx context.Context, name string, run func(context.Context, string) (bool, error)) {
	tenants, err := in.Tenants.ListTenants(ctx)
	if err != nil {
		in.Logger.WithError(err).WithField("task", name).Warn("failed to list tenants")
		return
	}
	for _, tenantID := range tenants {
		lockKey := "integrator:" + name + ":" + tenantID
		lock, ok, err := in.Locks.Acquire(ctx, lockKey, in.Config.LockTTL)
		if err != nil {
			in.Logger.WithError(err).WithFields(logrus.Fields{"task": name, "tenant": tenantID}).Warn("lock acquire failed")
			continue
		}
		if !ok {
			in.recordSkip(name)
			continue
		}
		processed, err := run(ctx, tenantID)
		if err != nil {
			in.Logger.WithError(err).WithFields(logrus.Fields{"task": name, "tenant": tenantID}).Warn("task run failed")
		} else {
			in.Logger.WithFields(logrus.Fields{"task": name, "tenant": tenantID, "processed": processed}).Debug("task run complete")
		}
		if err := lock.Release(ctx); err != nil {
			in.Logger.WithError(err).WithFields(logrus.Fields{"task": name, "tenant": tenantID}).Warn("lock release failed")
		}
	}
}

func (in *Integrator) recordSkip(name string) {
	in.mu.Lock()
	counter, ok := in.skipped[name]
	if !ok {
		var zero int64
		counter = &zero
		in.skipped[name] = counter
	}
	in.mu.Unlock()
	atomic.AddInt64(counter, 1)
}

// SkippedTicks reports how many ticks of the named task were skipped because
// the previous run was still in flight.
func (in *Integrator) SkippedTicks(name string) int64 {
	in.mu.Lock()
	counter, ok := in.skipped[name]
	in.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}

// batchResult accumulates a task's per-memory outcomes: errors are collected
// and logged while the task continues with the next memory, and a run
// reports success iff at least one memory was processed without a fatal
// store error.
type batchResult struct {
	processed        int
	errs             []error
	consecutiveFails int
}

func (b *batchResult) recordSuccess() {
	b.processed++
	b.consecutiveFails = 0
}

func (b *batchResult) recordFailure(err error) error {
	b.errs = append(b.errs, err)
	b.consecutiveFails++
	if b.consecutiveFails >= 3 {
		return apperr.Database("aborting batch after 3 consecutive store failures", err)
	}
	return nil
}

func (b *batchResult) ok() bool {
	return b.processed > 0
}
