package events

import "time"

// ScopeStart is emitted when a projector cache scope is opened.
type ScopeStart struct {
	Scope int64
}

// ScopeFinish is emitted when a projector cache scope is closed.
type ScopeFinish struct {
	Scope   int64
	Entries int
}

// CompileStart is emitted before a projector is built and compiled.
type CompileStart struct {
	Scope    int64
	Field    string
	RootType string
}

// CompileFinish is emitted after a projector was built and compiled, or
// failed to be.
type CompileFinish struct {
	Scope    int64
	Field    string
	RootType string
	Types    int
	Err      error
	Duration time.Duration
}

// CacheHit is emitted when a cached projector is reused.
type CacheHit struct {
	Scope    int64
	Field    string
	RootType string
}
