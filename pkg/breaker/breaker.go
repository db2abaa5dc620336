// Package breaker guards each remote stage dependency with a statistical
// circuit breaker: a rolling window of outcome samples per key, a derived
// closed/open/half-open state, and limited half-open probing.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrOpen is returned when the breaker rejects a call because its
	// circuit is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrProbeInProgress is returned when a half-open breaker already has
	// its maximum number of concurrent probes in flight. Callers should
	// fail fast, not queue.
	ErrProbeInProgress = errors.New("circuit breaker half-open probe in progress")
)

// IsOpen reports whether the error came from an open or probe-saturated
// breaker rather than from the task itself.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrProbeInProgress)
}

// State is the derived health state of one breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes one breaker. The zero value is not usable; use DefaultConfig.
type Config struct {
	// Window is how far back outcome samples count toward the state.
	Window time.Duration
	// FailureRateThreshold opens the circuit when failed/total in the
	// window reaches it (0..1).
	FailureRateThreshold float64
	// LatencyThreshold opens the circuit when the mean sample duration in
	// the window reaches it. Zero disables the latency trip.
	LatencyThreshold time.Duration
	// MinimumSamples is the sample count below which thresholds are not
	// evaluated, so a single early failure cannot trip the circuit.
	MinimumSamples int
	// OpenTimeout is how long the circuit stays open before the next call
	// is admitted as a half-open probe.
	OpenTimeout time.Duration
	// HalfOpenMaxProbes caps concurrent half-open probes.
	HalfOpenMaxProbes int
	// MaxSamples bounds the window's memory regardless of Window.
	MaxSamples int
}

func DefaultConfig() Config {
	return Config{
		Window:               60 * time.Second,
		FailureRateThreshold: 0.5,
		LatencyThreshold:     0,
		MinimumSamples:       5,
		OpenTimeout:          30 * time.Second,
		HalfOpenMaxProbes:    1,
		MaxSamples:           256,
	}
}

type sample struct {
	at       time.Time
	success  bool
	duration time.Duration
}

// breaker is the per-key state. All mutation happens under mu so the
// prune / append / transition sequence is atomic per key.
type breaker struct {
	mu sync.Mutex

	config         Config
	state          State
	samples        []sample
	openedAt       time.Time
	inFlightProbes int
}

func newBreaker(config Config) *breaker {
	return &breaker{
		config: config,
		state:  StateClosed,
	}
}

// admit decides whether a call may proceed. It performs the lazy open →
// half-open transition and reserves a probe slot in half-open state. The
// returned release flag is true when the caller holds a probe slot.
func (b *breaker) admit(key string, now time.Time) (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now)

	switch b.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if now.Sub(b.openedAt) < b.config.OpenTimeout {
			return false, fmt.Errorf("breaker %q: %w", key, ErrOpen)
		}

		b.state = StateHalfOpen
		b.inFlightProbes = 1

		return true, nil

	case StateHalfOpen:
		if b.inFlightProbes >= b.config.HalfOpenMaxProbes {
			return false, fmt.Errorf("breaker %q: %w", key, ErrProbeInProgress)
		}

		b.inFlightProbes++

		return true, nil
	}

	return false, nil
}

// record appends the outcome sample and applies state transitions. A probe
// outcome decides the half-open verdict on its own: success closes the
// circuit and discards history, failure re-opens it immediately.
func (b *breaker) record(now time.Time, success bool, duration time.Duration, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, sample{at: now, success: success, duration: duration})
	b.prune(now)

	if probe {
		b.inFlightProbes--

		if b.state == StateHalfOpen {
			if success {
				b.state = StateClosed
				b.samples = nil
				b.inFlightProbes = 0
			} else {
				b.state = StateOpen
				b.openedAt = now
				b.inFlightProbes = 0
			}
		}

		return
	}

	if b.state == StateClosed && b.tripped() {
		b.state = StateOpen
		b.openedAt = now
	}
}

// tripped evaluates the windowed thresholds. Callers hold mu.
func (b *breaker) tripped() bool {
	total := len(b.samples)
	if total < b.config.MinimumSamples {
		return false
	}

	var (
		failures      int
		totalDuration time.Duration
	)

	for _, s := range b.samples {
		if !s.success {
			failures++
		}

		totalDuration += s.duration
	}

	failureRate := float64(failures) / float64(total)
	if failureRate >= b.config.FailureRateThreshold {
		return true
	}

	if b.config.LatencyThreshold > 0 {
		if totalDuration/time.Duration(total) >= b.config.LatencyThreshold {
			return true
		}
	}

	return false
}

// prune drops samples older than the window and enforces the sample cap.
// Callers hold mu.
func (b *breaker) prune(now time.Time) {
	cutoff := now.Add(-b.config.Window)

	kept := b.samples[:0]
	for _, s := range b.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}

	b.samples = kept

	if b.config.MaxSamples > 0 && len(b.samples) > b.config.MaxSamples {
		b.samples = b.samples[len(b.samples)-b.config.MaxSamples:]
	}
}

// snapshot builds a read-only view. Callers hold nothing; snapshot locks.
func (b *breaker) snapshot(key string, now time.Time) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now)

	var (
		failures      int
		lastFailure   time.Time
		totalDuration time.Duration
	)

	for _, s := range b.samples {
		if !s.success {
			failures++

			if s.at.After(lastFailure) {
				lastFailure = s.at
			}
		}

		totalDuration += s.duration
	}

	snap := Snapshot{
		Key:            key,
		State:          b.state,
		Samples:        len(b.samples),
		Failures:       failures,
		InFlightProbes: b.inFlightProbes,
	}

	if len(b.samples) > 0 {
		snap.FailureRate = float64(failures) / float64(len(b.samples))
		snap.AverageLatency = totalDuration / time.Duration(len(b.samples))
	}

	if b.state == StateOpen {
		snap.OpenedAt = b.openedAt
	}

	if !lastFailure.IsZero() {
		snap.LastFailureAt = lastFailure
	}

	return snap
}

// Snapshot is the observable view of one breaker, exported for monitoring.
type Snapshot struct {
	Key            string        `json:"key"`
	State          State         `json:"state"`
	Samples        int           `json:"samples"`
	Failures       int           `json:"failures"`
	FailureRate    float64       `json:"failure_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	OpenedAt       time.Time     `json:"opened_at,omitzero"`
	LastFailureAt  time.Time     `json:"last_failure_at,omitzero"`
	InFlightProbes int           `json:"in_flight_probes"`
}
