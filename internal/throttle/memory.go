package throttle

import (
	"context"
	"sync"
	"time"
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Memory is a process-local Limiter. Use Redis when several instances sit
// behind one load balancer.
type Memory struct {
	policy Policy
	now    func() time.Time

	mu        sync.Mutex
	attempts  map[string]*attemptState
	lastSweep time.Time
}

// NewMemory creates a Memory limiter for policy.
func NewMemory(policy Policy) *Memory {
	return &Memory{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

func (m *Memory) Check(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	if wait := state.lockedUntil.Sub(m.now()); wait > 0 {
		return wait, nil
	}
	return 0, nil
}

func (m *Memory) Fail(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	state, ok := m.attempts[key]
	if !ok {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	} else if now.Sub(state.firstAttempt) > m.policy.Window {
		state.count = 0
		state.firstAttempt = now
	}

	state.count++
	if state.count >= m.policy.MaxAttempts {
		// A lock starts a fresh window, so the key gets the full
		// allowance back once it expires.
		state.lockedUntil = now.Add(m.policy.Lock)
		state.count = 0
		state.firstAttempt = now
		return 0, nil
	}

	return remaining(m.policy, state.count), nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

// sweep drops states whose window and lock have both passed. Runs at most
// once per window. Caller holds mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.policy.Window {
		return
	}
	m.lastSweep = now
	for key, state := range m.attempts {
		if now.Sub(state.firstAttempt) > m.policy.Window && now.After(state.lockedUntil) {
			delete(m.attempts, key)
		}
	}
}
