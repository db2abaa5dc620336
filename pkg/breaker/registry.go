package breaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Task is the guarded unit of work. The breaker times it and records the
// outcome regardless of result.
type Task func(ctx context.Context) error

// Registry maintains one breaker per caller-chosen key, conventionally
// "workflowID:stageID". Breakers are created lazily on first use and share
// the registry's default configuration unless the key was configured
// explicitly beforehand.
type Registry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	defaults Config
	breakers map[string]*breaker
}

func NewRegistry(logger *slog.Logger, defaults Config) *Registry {
	return &Registry{
		logger:   logger.With("module", "breaker"),
		defaults: defaults,
		breakers: make(map[string]*breaker),
	}
}

// Key builds the conventional per-stage breaker key.
func Key(workflowID, stageID string) string {
	return workflowID + ":" + stageID
}

// Configure pins a non-default configuration for a key. It must be called
// before the key's first execution; a live breaker keeps its config.
func (r *Registry) Configure(key string, config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[key]; !exists {
		r.breakers[key] = newBreaker(config)
	}
}

// Execute runs the task under the key's breaker. When the circuit is open or
// half-open probing is saturated it fails fast with ErrOpen or
// ErrProbeInProgress without invoking the task; otherwise the task runs, its
// outcome and duration are recorded, and its own error is propagated.
func (r *Registry) Execute(ctx context.Context, key string, task Task) error {
	b := r.getOrCreate(key)

	probe, err := b.admit(key, time.Now())
	if err != nil {
		return err
	}

	start := time.Now()
	recorded := false

	// A panicking task still records a failure, releasing its half-open
	// probe slot before the panic propagates.
	defer func() {
		if !recorded {
			b.record(time.Now(), false, time.Since(start), probe)
		}
	}()

	err = task(ctx)
	duration := time.Since(start)

	recorded = true
	b.record(time.Now(), err == nil, duration, probe)

	if err != nil && probe {
		r.logger.Warn("Half-open probe failed, circuit re-opened", "key", key, "error", err)
	}

	return err
}

// State returns the key's current state without changing it.
func (r *Registry) State(key string) State {
	return r.getOrCreate(key).snapshot(key, time.Now()).State
}

// Inspect returns the observable view of one breaker.
func (r *Registry) Inspect(key string) Snapshot {
	return r.getOrCreate(key).snapshot(key, time.Now())
}

// Reset discards the key's history and returns its circuit to closed.
func (r *Registry) Reset(key string) {
	b := r.getOrCreate(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.samples = nil
	b.inFlightProbes = 0
	b.openedAt = time.Time{}

	r.logger.Info("Circuit breaker reset", "key", key)
}

// Export snapshots every known breaker, sorted by key for stable output.
func (r *Registry) Export() []Snapshot {
	r.mu.Lock()

	keys := make([]string, 0, len(r.breakers))
	for key := range r.breakers {
		keys = append(keys, key)
	}

	r.mu.Unlock()

	sort.Strings(keys)

	now := time.Now()
	snaps := make([]Snapshot, 0, len(keys))

	for _, key := range keys {
		snaps = append(snaps, r.getOrCreate(key).snapshot(key, now))
	}

	return snaps
}

func (r *Registry) getOrCreate(key string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = newBreaker(r.defaults)
		r.breakers[key] = b
	}

	return b
}
