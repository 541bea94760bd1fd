package vigil

import "sync/atomic"

// Metrics holds in-process counters for authentication outcomes.
// All methods are safe on a nil receiver so the manager can run with
// metrics disabled.
type Metrics struct {
	loginSuccess   atomic.Uint64
	loginFailure   atomic.Uint64
	loginThrottled atomic.Uint64
	lockouts       atomic.Uint64
	renewals       atomic.Uint64
	renewFailures  atomic.Uint64
	logouts        atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	LoginSuccess   uint64
	LoginFailure   uint64
	LoginThrottled uint64
	Lockouts       uint64
	Renewals       uint64
	RenewFailures  uint64
	Logouts        uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		LoginSuccess:   m.loginSuccess.Load(),
		LoginFailure:   m.loginFailure.Load(),
		LoginThrottled: m.loginThrottled.Load(),
		Lockouts:       m.lockouts.Load(),
		Renewals:       m.renewals.Load(),
		RenewFailures:  m.renewFailures.Load(),
		Logouts:        m.logouts.Load(),
	}
}

func (m *Metrics) incLoginSuccess() {
	if m != nil {
		m.loginSuccess.Add(1)
	}
}

func (m *Metrics) incLoginFailure() {
	if m != nil {
		m.loginFailure.Add(1)
	}
}

func (m *Metrics) incLoginThrottled() {
	if m != nil {
		m.loginThrottled.Add(1)
	}
}

func (m *Metrics) incLockouts() {
	if m != nil {
		m.lockouts.Add(1)
	}
}

func (m *Metrics) incRenewals() {
	if m != nil {
		m.renewals.Add(1)
	}
}

func (m *Metrics) incRenewFailures() {
	if m != nil {
		m.renewFailures.Add(1)
	}
}

func (m *Metrics) incLogouts() {
	if m != nil {
		m.logouts.Add(1)
	}
}
