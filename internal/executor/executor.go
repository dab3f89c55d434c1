// Package executor consumes request messages from the bus, performs the
// real authentication work through a pluggable Service, and publishes
// exactly one response per request plus auth-state broadcasts whenever
// the current-user snapshot changes.
package executor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bus"
	"github.com/otiai10/kakehashi/internal/store"
)

// Request is one decoded operation handed to a Service.
type Request struct {
	Action auth.Action
	Params map[string]string
	// Current is the executor's view of the signed-in user at dispatch
	// time, nil when signed out. Services that manage users server-side
	// need it for the uid.
	Current *auth.User
}

// Service performs the platform-native side of each auth action.
// A nil user with a nil error means the operation succeeded and ended
// signed-out (signOut, deleteAccount). Failures should be *auth.Error
// so the caller receives a taxonomy member; other errors surface as
// Unknown.
type Service interface {
	Execute(ctx context.Context, req Request) (*auth.User, error)
}

// stateless actions succeed without changing the current-user snapshot.
var stateless = map[auth.Action]bool{
	auth.ActionSendPasswordResetEmail: true,
	auth.ActionConfirmPasswordReset:   true,
	auth.ActionSendEmailVerification:  true,
	auth.ActionApplyActionCode:        true,
}

// Executor bridges the bus to a Service.
type Executor struct {
	bus   *bus.Bus
	svc   Service
	audit store.AuditRepository // optional, nil disables persistence

	token bus.Token
	wg    sync.WaitGroup

	mu       sync.Mutex
	current  *auth.User
	detached bool
}

// Option is a functional option for configuring the Executor.
type Option func(*Executor)

// WithAuditRepository records every operation outcome. If not provided,
// outcomes are not persisted.
func WithAuditRepository(repo store.AuditRepository) Option {
	return func(e *Executor) {
		e.audit = repo
	}
}

// New creates an executor backed by svc. Call Attach to start serving
// requests.
func New(b *bus.Bus, svc Service, opts ...Option) *Executor {
	e := &Executor{bus: b, svc: svc}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach subscribes the executor to the request channel. Each request
// runs in its own goroutine so native work never blocks the dispatch
// queue. ctx bounds the native calls; cancelling it abandons in-flight
// work but already-started operations still publish their response.
func (e *Executor) Attach(ctx context.Context) {
	e.token = e.bus.AddObserver(auth.TopicAuthRequest, func(p bus.Payload) {
		// A delivery snapshotted before Detach removed the observer can
		// still arrive here; Add must not race the Wait in Detach.
		e.mu.Lock()
		if e.detached {
			e.mu.Unlock()
			return
		}
		e.wg.Add(1)
		e.mu.Unlock()
		go func() {
			defer e.wg.Done()
			e.handle(ctx, p)
		}()
	})
}

// Detach unsubscribes from the request channel and waits for in-flight
// operations to publish their responses. Requests delivered after
// Detach begins are dropped.
func (e *Executor) Detach() {
	e.bus.RemoveObserver(e.token)
	e.mu.Lock()
	e.detached = true
	e.mu.Unlock()
	e.wg.Wait()
}

// CurrentUser returns the executor's view of the signed-in user.
func (e *Executor) CurrentUser() *auth.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Executor) handle(ctx context.Context, p bus.Payload) {
	start := time.Now()

	requestID, action, params, err := auth.DecodeRequest(p)
	if err != nil {
		log.Printf("Dropping malformed request: %v", err)
		if requestID != "" {
			e.bus.Publish(auth.TopicAuthResponse, auth.EncodeFailure(requestID, string(auth.CodeUnknown), err.Error()))
		}
		return
	}

	req := Request{Action: action, Params: params, Current: e.CurrentUser()}
	user, execErr := e.svc.Execute(ctx, req)

	if execErr != nil {
		code, message := errorIdentity(execErr)
		e.bus.Publish(auth.TopicAuthResponse, auth.EncodeFailure(requestID, code, message))
		e.record(ctx, requestID, action, auth.StatusFailure, code, "", start)
		return
	}

	e.bus.Publish(auth.TopicAuthResponse, auth.EncodeSuccess(requestID, user))

	if !stateless[action] {
		e.setCurrent(user)
	}

	uid := ""
	if user != nil {
		uid = user.UID
	}
	e.record(ctx, requestID, action, auth.StatusSuccess, "", uid, start)
}

// setCurrent replaces the current-user snapshot and broadcasts it.
func (e *Executor) setCurrent(u *auth.User) {
	e.mu.Lock()
	e.current = u
	e.mu.Unlock()
	e.bus.Publish(auth.TopicAuthState, auth.EncodeUser(u))
}

func (e *Executor) record(ctx context.Context, requestID string, action auth.Action, status, code, uid string, start time.Time) {
	if e.audit == nil {
		return
	}
	_, err := e.audit.Create(ctx, store.AuditRecord{
		RequestID:  requestID,
		Action:     string(action),
		Status:     status,
		ErrorCode:  code,
		UID:        uid,
		Latency:    time.Since(start),
		ReceivedAt: start,
	})
	if err != nil {
		log.Printf("Failed to save audit record: %v", err)
		// Auditing is best-effort; the response is already out.
	}
}

// errorIdentity extracts the wire identity of an execution failure.
// Typed errors keep their taxonomy code; anything else is Unknown.
func errorIdentity(err error) (code, message string) {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return string(ae.Code), ae.Message
	}
	return string(auth.CodeUnknown), err.Error()
}
