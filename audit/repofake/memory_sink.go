package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-identity-core/audit"
)

var (
	_ audit.Sink   = (*MemorySink)(nil)
	_ audit.Writer = (*MemorySink)(nil)
)

// MemorySink keeps entries in memory. It is also a synchronous audit.Writer so
// flow tests can assert on entries without waiting for a flush.
type MemorySink struct {
	mu      sync.Mutex
	entries []audit.Entry
	Err     error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, entries []audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemorySink) Log(ctx context.Context, entry audit.Entry) {
	_ = s.Write(ctx, []audit.Entry{entry})
}

func (s *MemorySink) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}

// OfType returns the entries with the given type code
func (s *MemorySink) OfType(t audit.Type) []audit.Entry {
	var out []audit.Entry
	for _, e := range s.Entries() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
