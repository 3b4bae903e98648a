package client

import "time"

// Policy bounds how hard the client tries to (re)connect
type Policy struct {
	MaxAttempts    int           // dial attempts before giving up, per outage
	InitialBackoff time.Duration // wait before the second attempt
	MaxBackoff     time.Duration // backoff doubles up to this
	DialTimeout    time.Duration // per attempt
}

// DefaultPolicy is 5 attempts, 1s doubling backoff capped at 16s, 10s dial timeout
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     16 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.DialTimeout <= 0 {
		p.DialTimeout = d.DialTimeout
	}
	return p
}

// Backoff returns the wait after the given failed attempt (1-based)
func (p Policy) Backoff(failed int) time.Duration {
	if failed < 1 {
		return 0
	}
	wait := p.InitialBackoff
	for i := 1; i < failed; i++ {
		wait *= 2
		if wait >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return wait
}
