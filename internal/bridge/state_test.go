package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/otiai10/kakehashi/internal/auth"
)

// TestState_SubscribeReplaysCurrent verifies that a new subscriber sees
// the latest value immediately, not just future updates.
func TestState_SubscribeReplaysCurrent(t *testing.T) {
	s := NewState()
	s.set(&auth.User{UID: "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	select {
	case u := <-ch:
		if u == nil || u.UID != "u1" {
			t.Errorf("expected replay of u1, got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no replay within 1s")
	}
}

// TestState_SignedOutIsNil verifies that the initial and signed-out
// states are represented as nil.
func TestState_SignedOutIsNil(t *testing.T) {
	s := NewState()
	if s.Current() != nil {
		t.Error("fresh state should have no user")
	}

	s.set(&auth.User{UID: "u1"})
	s.set(nil)
	if s.Current() != nil {
		t.Error("signed-out state should be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if u := <-s.Subscribe(ctx); u != nil {
		t.Errorf("subscriber should replay nil, got %+v", u)
	}
}

// TestState_SlowSubscriberSeesLatest verifies the latest-wins policy: a
// subscriber that never drains still finds the newest value, not a
// stale backlog entry.
func TestState_SlowSubscriberSeesLatest(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	for i := 0; i < 10; i++ {
		s.set(&auth.User{UID: "stale"})
	}
	s.set(&auth.User{UID: "latest"})

	// Drain whatever is buffered; the final value must be the newest.
	var last *auth.User
	for {
		select {
		case u := <-ch:
			last = u
		default:
			if last == nil || last.UID != "latest" {
				t.Errorf("expected latest, got %+v", last)
			}
			return
		}
	}
}

// TestState_UnsubscribeOnContextEnd verifies the channel closes and the
// subscription is dropped when the context ends.
func TestState_UnsubscribeOnContextEnd(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	<-ch // replay

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed within 1s")
		}
	}
}
