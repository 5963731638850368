package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyLinearDelay(t *testing.T) {
	p := ReconnectPolicy{Base: time.Second, Max: 15 * time.Second, MaxAttempts: 5}

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
	assert.Equal(t, 4*time.Second, p.Delay(4))
}

func TestReconnectPolicyDelayCapped(t *testing.T) {
	p := ReconnectPolicy{Base: 4 * time.Second, Max: 10 * time.Second, MaxAttempts: 5}

	assert.Equal(t, 8*time.Second, p.Delay(2))
	assert.Equal(t, 10*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(100))
}

func TestReconnectPolicyDelayFloorsAttempt(t *testing.T) {
	p := ReconnectPolicy{Base: time.Second, Max: 10 * time.Second, MaxAttempts: 5}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(-3))
}

func TestReconnectPolicyExhausted(t *testing.T) {
	p := ReconnectPolicy{Base: time.Second, Max: 10 * time.Second, MaxAttempts: 5}

	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "degraded", StateDegraded.String())
}
