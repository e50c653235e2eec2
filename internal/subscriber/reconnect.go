package subscriber

import (
	"fmt"
	"time"

	"github.com/nerrad567/statuslogger/internal/infrastructure/config"
)

// ReconnectPolicy decides when to try again after a refused connect or a
// lost connection.
type ReconnectPolicy interface {
	// Enabled reports whether the policy ever reconnects.
	Enabled() bool

	// NextDelay returns the wait before consecutive attempt n (1-based).
	// ok is false once no further attempt is allowed.
	NextDelay(attempt int) (delay time.Duration, ok bool)

	// String names the policy for logs.
	String() string
}

// NewReconnectPolicy builds the policy selected by cfg.
func NewReconnectPolicy(cfg config.MQTTReconnectConfig) (ReconnectPolicy, error) {
	switch cfg.Policy {
	case config.ReconnectNone:
		return NoReconnect(), nil
	case config.ReconnectFixed:
		return FixedInterval(cfg.GetInitialDelay(), cfg.MaxAttempts), nil
	case config.ReconnectExponential:
		return ExponentialBackoff(cfg.GetInitialDelay(), cfg.GetMaxDelay(), cfg.MaxAttempts), nil
	default:
		return nil, fmt.Errorf("subscriber: unknown reconnect policy %q", cfg.Policy)
	}
}

type noReconnect struct{}

// NoReconnect never reconnects. After a refused connect or a lost connection
// the process stays up, disconnected, until it is shut down.
func NoReconnect() ReconnectPolicy { return noReconnect{} }

func (noReconnect) Enabled() bool { return false }

func (noReconnect) NextDelay(int) (time.Duration, bool) { return 0, false }

func (noReconnect) String() string { return config.ReconnectNone }

type fixedInterval struct {
	interval    time.Duration
	maxAttempts int
}

// FixedInterval waits interval before every attempt. maxAttempts of 0 means
// unlimited.
func FixedInterval(interval time.Duration, maxAttempts int) ReconnectPolicy {
	return fixedInterval{interval: interval, maxAttempts: maxAttempts}
}

func (p fixedInterval) Enabled() bool { return true }

func (p fixedInterval) NextDelay(attempt int) (time.Duration, bool) {
	if p.maxAttempts > 0 && attempt > p.maxAttempts {
		return 0, false
	}
	return p.interval, true
}

func (p fixedInterval) String() string { return config.ReconnectFixed }

type exponentialBackoff struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int
}

// ExponentialBackoff waits initial before the first attempt and doubles the
// wait for each further attempt, never exceeding max. maxAttempts of 0 means
// unlimited.
func ExponentialBackoff(initial, maxDelay time.Duration, maxAttempts int) ReconnectPolicy {
	return exponentialBackoff{initial: initial, max: maxDelay, maxAttempts: maxAttempts}
}

func (p exponentialBackoff) Enabled() bool { return true }

func (p exponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if p.maxAttempts > 0 && attempt > p.maxAttempts {
		return 0, false
	}
	delay := p.initial
	for i := 1; i < attempt && delay < p.max; i++ {
		delay *= 2
	}
	if delay > p.max {
		delay = p.max
	}
	return delay, true
}

func (p exponentialBackoff) String() string { return config.ReconnectExponential }
