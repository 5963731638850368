package client

import "time"

// ConnState is the push-channel lifecycle state. It is owned exclusively by
// the connection manager.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ReconnectPolicy decides how long to wait between connection attempts and
// when to give up. The backoff is linear (Base * attempt), not exponential,
// so a flaky link never waits more than a few multiples of Base.
type ReconnectPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before the given attempt number (1-based), capped
// at Max.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base * time.Duration(attempt)
	if d > p.Max {
		d = p.Max
	}
	return d
}

// Exhausted reports whether the given number of consecutive failures has
// reached the retry cap.
func (p ReconnectPolicy) Exhausted(failures int) bool {
	return failures >= p.MaxAttempts
}
