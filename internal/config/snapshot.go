package config

import "sync/atomic"

// Snapshot broadcasts immutable Config views the way §9 describes the
// Router's per-cycle view: "on each scan tick, the Router reads a
// configuration snapshot; hot-reload publishes a new snapshot rather
// than mutating in place." Any component can hold a *Snapshot and call
// Get() without locking; Publish installs a new value atomically.
type Snapshot struct {
	v atomic.Pointer[Config]
}

// NewSnapshot returns a Snapshot initialized to cfg.
func NewSnapshot(cfg Config) *Snapshot {
	s := &Snapshot{}
	s.Publish(cfg)
	return s
}

// Get returns the current Config view. Safe for concurrent use.
func (s *Snapshot) Get() Config {
	return *s.v.Load()
}

// Publish installs a new Config view, visible to subsequent Get calls.
// Validate should be called by the publisher before calling this.
func (s *Snapshot) Publish(cfg Config) {
	c := cfg
	s.v.Store(&c)
}
