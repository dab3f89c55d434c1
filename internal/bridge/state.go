package bridge

import (
	"context"
	"sync"

	"github.com/otiai10/kakehashi/internal/auth"
)

// State is an observable cell holding the latest known authenticated
// user. It has a single writer (the client's auth-state observer) and
// any number of concurrent readers. New subscribers immediately see the
// latest value; slow subscribers see latest-wins, never a backlog.
type State struct {
	mu      sync.RWMutex
	current *auth.User
	subs    map[int]chan *auth.User
	next    int
}

// NewState creates a cell whose initial value is "no user".
func NewState() *State {
	return &State{
		subs: make(map[int]chan *auth.User),
	}
}

// Current returns the latest snapshot, nil when signed out.
func (s *State) Current() *auth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers an observer and returns a channel that first
// replays the current value and then receives every subsequent update.
// The channel is closed when ctx ends.
func (s *State) Subscribe(ctx context.Context) <-chan *auth.User {
	ch := make(chan *auth.User, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- s.current
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// set replaces the current value and fans it out. Called only from the
// bus dispatch goroutine, so updates are totally ordered.
func (s *State) set(u *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = u
	for _, ch := range s.subs {
		// Latest wins: displace a pending value rather than block.
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}
