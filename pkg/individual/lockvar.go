package individual

import "sync"

// invalidLock models the source's GLockVarT.hpp: a boolean that user
// evaluation code may flip to mark a solution invalid, writable only for the
// duration of one evaluation. It is opened by BeginEvaluation and sealed by
// Evaluate once the user functions return; writes outside that window are
// silently ignored so a
// misbehaving evaluation function cannot corrupt state it no longer owns.
type invalidLock struct {
	mu      sync.Mutex
	open    bool
	invalid bool
}

func (l *invalidLock) begin() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = true
	l.invalid = false
}

func (l *invalidLock) end() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	return l.invalid
}

// MarkInvalid is the user-facing call available during an evaluation.
func (l *invalidLock) MarkInvalid() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		l.invalid = true
	}
}

func (l *invalidLock) isOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}
