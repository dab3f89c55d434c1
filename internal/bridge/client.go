// Package bridge implements the request/response correlation layer
// between the shared authentication API and a native executor reachable
// only through the bus.
//
// Every operation call generates a fresh correlation identifier,
// registers a one-shot listener for the matching response before the
// request is published, and suspends the caller until the response
// arrives or the caller gives up. Responses for unknown identifiers are
// ignored; duplicate responses are inert; a cancelled caller's listener
// is always deregistered so it can neither leak nor fire later.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bus"
	"github.com/otiai10/kakehashi/internal/obs"
)

// Client is the caller-facing side of the bridge. It is safe for
// concurrent use; any number of operations may be in flight at once.
type Client struct {
	bus     *bus.Bus
	state   *State
	timeout time.Duration

	stateToken bus.Token

	googleFlow sync.Mutex
	appleFlow  sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds how long an operation call waits for a response.
// By default a call waits until its context is cancelled; a non-zero
// timeout converts an unanswered request into a Network failure
// instead.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a bridge client on b and starts mirroring the
// auth-state broadcast channel into the client's observable state cell.
// The subscription lives for the lifetime of the client; Close releases it.
func NewClient(b *bus.Bus, opts ...Option) *Client {
	c := &Client{
		bus:   b,
		state: NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stateToken = b.AddObserver(auth.TopicAuthState, func(p bus.Payload) {
		c.state.set(auth.DecodeUser(p))
		obs.StateUpdated()
	})
	return c
}

// AuthState returns the observable cell holding the latest known
// authenticated-user snapshot.
func (c *Client) AuthState() *State {
	return c.state
}

// Close deregisters the client's long-lived bus observers. In-flight
// Perform calls keep their own listeners and are unaffected.
func (c *Client) Close() {
	c.bus.RemoveObserver(c.stateToken)
}

// Perform runs one operation against the native executor and returns
// the resulting user snapshot (nil for operations that end signed-out,
// such as signOut) or a typed *auth.Error.
//
// Parameter validation happens before anything touches the bus: a
// request missing a required field fails with MissingParameter and the
// executor never sees it.
func (c *Client) Perform(ctx context.Context, action auth.Action, params map[string]string) (*auth.User, error) {
	if err := action.ValidateParams(params); err != nil {
		return nil, err
	}

	// Fresh per call, never reused. Uniqueness is what keeps one
	// caller's response from resuming another caller.
	requestID := uuid.NewString()

	// Buffered so the dispatch goroutine never blocks on delivery,
	// guarded by a Once so a duplicate response is a no-op.
	responses := make(chan bus.Payload, 1)
	var once sync.Once
	token := c.bus.AddObserver(auth.TopicAuthResponse, func(p bus.Payload) {
		if payloadString(p, auth.KeyRequestID) != requestID {
			return
		}
		delivered := false
		once.Do(func() {
			responses <- p
			delivered = true
		})
		if !delivered {
			obs.ResponseDropped()
		}
	})
	// Whichever path wins the race below, the listener is released
	// exactly here; RemoveObserver is idempotent.
	defer c.bus.RemoveObserver(token)

	// The listener above is registered before this publish. A native
	// executor fast enough to answer synchronously still finds it.
	c.bus.Publish(auth.TopicAuthRequest, auth.EncodeRequest(requestID, action, params))

	obs.RequestStarted()

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case p := <-responses:
		user, err := auth.DecodeResponse(p)
		if err != nil {
			obs.RequestFinished(string(action), "failure")
			return nil, err
		}
		obs.RequestFinished(string(action), "success")
		return user, nil
	case <-ctx.Done():
		// Cleanup only; the executor may still complete the work, and
		// its eventual response will find no listener.
		obs.RequestFinished(string(action), "cancelled")
		return nil, ctx.Err()
	case <-expired:
		obs.RequestFinished(string(action), "failure")
		return nil, &auth.Error{Code: auth.CodeNetwork, Message: "no response from executor within " + c.timeout.String()}
	}
}

// payloadString mirrors the defensive string accessor used by the auth
// package, local to the hot filter path.
func payloadString(p bus.Payload, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}
