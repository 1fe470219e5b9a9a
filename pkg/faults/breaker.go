package faults

import (
	"sync"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig is used for per-task-type breakers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// DefaultSystemBreakerConfig is used for the system-wide breaker, which only
// trips when failures pile up across many task types at once.
func DefaultSystemBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 20,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 5,
	}
}

// BreakerSnapshot is a read-only copy of breaker state for diagnostics.
type BreakerSnapshot struct {
	State        BreakerState `json:"state"`
	FailureCount int          `json:"failure_count"`
	SuccessCount int          `json:"success_count"`
	LastFailure  time.Time    `json:"last_failure,omitzero"`
	NextAttempt  time.Time    `json:"next_attempt,omitzero"`
}

// Breaker is one circuit breaker: closed until failureThreshold consecutive
// failures, then open until resetTimeout elapses, then half-open until
// halfOpenMaxCalls consecutive successes close it again. All transitions are
// applied under the breaker's own lock; keys are independent so no cross-key
// locking exists anywhere.
type Breaker struct {
	mu     sync.Mutex
	config BreakerConfig
	now    func() time.Time

	state        BreakerState
	failureCount int
	successCount int
	lastFailure  time.Time
	nextAttempt  time.Time
}

func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// Allow reports whether a call may proceed, moving open breakers to
// half-open once the reset timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Before(b.nextAttempt) {
			return false
		}

		b.state = BreakerHalfOpen
		b.successCount = 0

		return true
	case BreakerHalfOpen:
		return true
	}

	return true
}

// RecordSuccess counts a successful call, closing a half-open breaker after
// enough consecutive trial successes.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenMaxCalls {
			b.state = BreakerClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case BreakerClosed:
		b.failureCount = 0
	case BreakerOpen:
		// Late success from a straggler; the breaker stays open.
	}
}

// RecordFailure counts a failed call, tripping the breaker at the threshold.
// Any failure during half-open re-opens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case BreakerHalfOpen:
		b.trip()
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.trip()
		}
	case BreakerOpen:
	}
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.successCount = 0
	b.nextAttempt = b.now().Add(b.config.ResetTimeout)
}

// Snapshot returns a copy of the current breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailure,
		NextAttempt:  b.nextAttempt,
	}
}

// BreakerRegistry holds one breaker per task type plus a system-wide one.
type BreakerRegistry struct {
	mu      sync.Mutex
	perType map[models.TaskType]*Breaker
	system  *Breaker
	config  BreakerConfig
}

func NewBreakerRegistry(perTypeConfig, systemConfig BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		perType: make(map[models.TaskType]*Breaker),
		system:  NewBreaker(systemConfig),
		config:  perTypeConfig,
	}
}

// ForType returns the breaker for a task type, creating it on first use.
func (r *BreakerRegistry) ForType(taskType models.TaskType) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	breaker, ok := r.perType[taskType]
	if !ok {
		breaker = NewBreaker(r.config)
		r.perType[taskType] = breaker
	}

	return breaker
}

// System returns the system-wide breaker.
func (r *BreakerRegistry) System() *Breaker {
	return r.system
}

// Allow reports whether calls for the task type may proceed through both the
// per-type and the system-wide breaker.
func (r *BreakerRegistry) Allow(taskType models.TaskType) bool {
	return r.ForType(taskType).Allow() && r.system.Allow()
}

// RecordSuccess updates both the per-type and the system-wide breaker.
func (r *BreakerRegistry) RecordSuccess(taskType models.TaskType) {
	r.ForType(taskType).RecordSuccess()
	r.system.RecordSuccess()
}

// RecordFailure updates both the per-type and the system-wide breaker.
func (r *BreakerRegistry) RecordFailure(taskType models.TaskType) {
	r.ForType(taskType).RecordFailure()
	r.system.RecordFailure()
}
