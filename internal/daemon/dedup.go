package daemon

import "sync"

const defaultDedupCapacity = 1000

// dedupSet remembers the fingerprints of recently accepted transcripts so a
// capture device retrying a delivery does not store the same transcript
// twice. Bounded FIFO; oldest fingerprints fall out first.
type dedupSet struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]bool
	order    []string
}

func newDedupSet(capacity int) *dedupSet {
	return &dedupSet{capacity: capacity, seen: make(map[string]bool)}
}

// Add records fingerprint and reports whether it was already present.
func (s *dedupSet) Add(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[fingerprint] {
		return true
	}
	s.seen[fingerprint] = true
	s.order = append(s.order, fingerprint)
	if len(s.order) > s.capacity {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return false
}

// Remove forgets a fingerprint so a failed store does not block the
// sender's retry of the same transcript.
func (s *dedupSet) Remove(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen[fingerprint] {
		return
	}
	delete(s.seen, fingerprint)
	for i, f := range s.order {
		if f == fingerprint {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
