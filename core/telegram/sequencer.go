package telegram

import "sync"

// sequencer runs queued functions strictly in enqueue order per key while
// keeping different keys fully concurrent. Mutexes alone cannot give that
// ordering: goroutines parked on a contended mutex wake in no particular
// order, so two updates from one user could swap places.
type sequencer struct {
	mu      sync.Mutex
	pending map[int64][]func()
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[int64][]func())}
}

// enqueue appends fn to the key's queue. The first entry for an idle key
// starts a drain goroutine; it exits once the queue empties.
func (s *sequencer) enqueue(key int64, fn func()) {
	s.mu.Lock()
	_, active := s.pending[key]
	s.pending[key] = append(s.pending[key], fn)
	s.mu.Unlock()

	if !active {
		go s.drain(key)
	}
}

func (s *sequencer) drain(key int64) {
	for {
		s.mu.Lock()
		queue := s.pending[key]
		if len(queue) == 0 {
			delete(s.pending, key)
			s.mu.Unlock()
			return
		}
		fn := queue[0]
		s.pending[key] = queue[1:]
		s.mu.Unlock()

		fn()
	}
}
