package runner

import "sync"

// RunState holds what one whole run has already done, so that tests sharing
// checkers, compilers or programs do not repeat the work. It is created once
// per run and passed to every Runner call.
type RunState struct {
	mu sync.Mutex
	// support maps a support command line to whether it succeeded.
	support map[string]bool
	// chmodded records programs already made executable.
	chmodded map[string]bool
	// linked maps a canonical program path to the unique binary it points at.
	linked map[string]string
	// created records canonical paths this run linked and may replace.
	created map[string]bool
}

// NewRunState returns empty state for a new run.
func NewRunState() *RunState {
	return &RunState{
		support:  make(map[string]bool),
		chmodded: make(map[string]bool),
		linked:   make(map[string]string),
		created:  make(map[string]bool),
	}
}

func (s *RunState) supportResult(key string) (ok, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, cached = s.support[key]
	return ok, cached
}

func (s *RunState) storeSupport(key string, ok bool) {
	s.mu.Lock()
	s.support[key] = ok
	s.mu.Unlock()
}

// markChmod returns true the first time program is seen.
func (s *RunState) markChmod(program string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chmodded[program] {
		return false
	}
	s.chmodded[program] = true
	return true
}

func (s *RunState) linkedTo(program string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linked[program]
}

func (s *RunState) recordLink(program, unique string) {
	s.mu.Lock()
	s.linked[program] = unique
	s.created[program] = true
	s.mu.Unlock()
}

func (s *RunState) createdByRun(program string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[program]
}

func (s *RunState) forget(program string) {
	s.mu.Lock()
	delete(s.linked, program)
	delete(s.created, program)
	s.mu.Unlock()
}
