// Package breaker implements a three-state circuit breaker for calls to
// flaky dependencies.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/answerline/answer-engine/internal/observability"
)

// ErrOpen is returned when the circuit is open and the call is not attempted.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's current disposition.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config controls when the breaker trips and when it probes again.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Zero takes the default of 5.
	FailureThreshold int
	// CooldownPeriod is how long the circuit stays open before a probe
	// call is allowed. Zero takes the default of 60s.
	CooldownPeriod time.Duration
}

// Breaker guards calls to one dependency. Failures accumulate in CLOSED;
// at the threshold the circuit opens and calls fail fast with ErrOpen. After
// the cooldown one probe call runs in HALF_OPEN: success closes the circuit,
// failure reopens it.
type Breaker struct {
	logger    *observability.Logger
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a breaker. name labels log lines only.
func New(name string, logger *observability.Logger, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 60 * time.Second
	}
	return &Breaker{
		logger:    logger.With().Str("breaker", name).Logger(),
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.CooldownPeriod,
		now:       time.Now,
		state:     StateClosed,
	}
}

// State reports the current state, promoting OPEN to HALF_OPEN once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observe()
}

// observe must be called with the lock held.
func (b *Breaker) observe() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.probing = false
	}
	return b.state
}

// Do runs fn through the breaker. An open circuit returns ErrOpen without
// invoking fn; a cancelled context counts as the caller's failure, not the
// dependency's.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.observe() {
	case StateOpen:
		b.mu.Unlock()
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.onSuccess()
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Caller went away; says nothing about dependency health.
		if b.state == StateHalfOpen {
			b.probing = false
		}
		return err
	}
	b.onFailure()
	return err
}

// onSuccess must be called with the lock held.
func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		b.logger.Info().Msg("Circuit closed after successful probe")
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

// onFailure must be called with the lock held.
func (b *Breaker) onFailure() {
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	}
}

// open must be called with the lock held.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probing = false
	b.logger.Warn().
		Int("failures", b.failures).
		Msg("Circuit opened")
}
