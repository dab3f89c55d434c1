package bridge

import (
	"context"
	"sync"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bus"
)

// External sign-in flows hand control to a native UI (the provider's
// consent screen) and await a single completion message. Unlike
// Perform there is no correlation identifier: only one flow per
// provider is ever outstanding, enforced by a per-flow mutex, so the
// well-known channel pair is the correlation context.

// RequestGoogleSignIn triggers the native Google sign-in UI and waits
// for the resulting OAuth ID token. A completion message without a
// token means the user cancelled or the flow failed.
func (c *Client) RequestGoogleSignIn(ctx context.Context) (string, error) {
	return c.runFlow(ctx, &c.googleFlow, auth.TopicGoogleSignInRequest, auth.TopicGoogleSignInCompleted)
}

// RequestAppleSignIn triggers the native Apple sign-in UI and waits for
// the resulting OAuth ID token.
func (c *Client) RequestAppleSignIn(ctx context.Context) (string, error) {
	return c.runFlow(ctx, &c.appleFlow, auth.TopicAppleSignInRequest, auth.TopicAppleSignInCompleted)
}

func (c *Client) runFlow(ctx context.Context, flow *sync.Mutex, requestTopic, completedTopic string) (string, error) {
	flow.Lock()
	defer flow.Unlock()

	completions := make(chan bus.Payload, 1)
	var once sync.Once
	token := c.bus.AddObserver(completedTopic, func(p bus.Payload) {
		once.Do(func() {
			completions <- p
		})
	})
	defer c.bus.RemoveObserver(token)

	c.bus.Publish(requestTopic, bus.Payload{})

	select {
	case p := <-completions:
		idToken := payloadString(p, auth.KeyIDToken)
		if idToken == "" {
			return "", &auth.Error{Code: auth.CodeUnknown, Message: "sign-in flow completed without a token"}
		}
		return idToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
