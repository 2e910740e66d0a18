package testfixtures

import (
	"fmt"
	"sync"
)

// Sequence yields prefix-1, prefix-2, ... and is safe for concurrent use.
type Sequence struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("%s-%d", s.prefix, s.counter)
}

// NextFunc exposes Next for injection as an id or token generator.
func (s *Sequence) NextFunc() func() string {
	return s.Next
}
