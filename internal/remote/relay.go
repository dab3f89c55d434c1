// Package remote connects a local bus to a remote one over WebSocket,
// for deployments where the executor runs in another process. Locally
// published messages on the forward topics are sent out as JSON frames;
// inbound frames on the accept topics are republished locally. The two
// topic sets must be disjoint so a frame can never echo back.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bus"
)

const (
	// refreshInterval is how often to re-dial to avoid server-side idle
	// disconnects
	refreshInterval = 9 * time.Minute

	// maxRetries is maximum number of connection retry attempts
	maxRetries = 10

	// initialRetryDelay is the starting delay for exponential backoff
	initialRetryDelay = 1 * time.Second

	// maxRetryDelay is the maximum delay between retries
	maxRetryDelay = 60 * time.Second

	// maxSeenIDs bounds the duplicate-suppression window
	maxSeenIDs = 1000
)

// frame is the wire format for one relayed message.
type frame struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Relay forwards bus traffic to and from a remote endpoint.
type Relay struct {
	endpoint     string
	bus          *bus.Bus
	forward      []string
	accept       map[string]bool
	refreshEvery time.Duration

	mu          sync.Mutex
	conn        *websocket.Conn
	tokens      []bus.Token
	done        chan struct{}
	seenIDs     map[string]struct{}
	seenIDsList []string // for LRU eviction
}

// NewRelay creates a relay between b and the WebSocket endpoint.
// forward lists the locally-published topics to send out; accept lists
// the inbound topics to republish locally. Overlapping sets would echo
// messages forever, so they are rejected.
func NewRelay(endpoint string, b *bus.Bus, forward, accept []string) (*Relay, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	acceptSet := make(map[string]bool, len(accept))
	for _, name := range accept {
		acceptSet[name] = true
	}
	for _, name := range forward {
		if acceptSet[name] {
			return nil, fmt.Errorf("topic %q is both forwarded and accepted", name)
		}
	}
	return &Relay{
		endpoint:     endpoint,
		bus:          b,
		forward:      forward,
		accept:       acceptSet,
		refreshEvery: refreshInterval,
		done:         make(chan struct{}),
		seenIDs:      make(map[string]struct{}),
		seenIDsList:  make([]string, 0),
	}, nil
}

// Connect dials the remote endpoint with retry, registers forwarding
// observers, and starts the read loop.
func (r *Relay) Connect(ctx context.Context) error {
	if err := r.connect(ctx); err != nil {
		log.Printf("Failed to establish initial relay connection: %v", err)
		return err
	}

	for _, name := range r.forward {
		name := name
		token := r.bus.AddObserver(name, func(p bus.Payload) {
			if err := r.send(frame{Name: name, Payload: p}); err != nil {
				log.Printf("Relay send failed for %s: %v", name, err)
			}
		})
		r.tokens = append(r.tokens, token)
	}

	go r.readLoop(ctx)

	go r.scheduleRefresh(ctx)

	return nil
}

// Close removes the forwarding observers and closes the connection.
func (r *Relay) Close() error {
	close(r.done)
	for _, token := range r.tokens {
		r.bus.RemoveObserver(token)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// connect establishes the WebSocket connection with exponential backoff.
func (r *Relay) connect(ctx context.Context) error {
	var lastErr error
	delay := initialRetryDelay

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return fmt.Errorf("relay closed")
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.endpoint, nil)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.mu.Unlock()
			log.Printf("Relay connected to %s", r.endpoint)
			return nil
		}

		lastErr = err
		log.Printf("Relay connection attempt %d/%d failed: %v", attempt+1, maxRetries, err)

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.done:
				return fmt.Errorf("relay closed")
			case <-time.After(delay):
				delay *= 2
				if delay > maxRetryDelay {
					delay = maxRetryDelay
				}
			}
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// send writes one frame; writes are serialized since gorilla allows at
// most one concurrent writer.
func (r *Relay) send(f frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads inbound frames and republishes accepted topics.
func (r *Relay) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()

		if conn == nil {
			time.Sleep(1 * time.Second)
			continue
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			log.Printf("Relay read error: %v", err)
			r.mu.Lock()
			r.conn = nil
			r.mu.Unlock()

			if reconnectErr := r.connect(ctx); reconnectErr != nil {
				log.Printf("Relay reconnection failed: %v", reconnectErr)
				time.Sleep(1 * time.Second)
			}
			continue
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("Failed to parse relay frame: %v", err)
			continue
		}

		if !r.accept[f.Name] {
			continue
		}

		// A remote peer may re-send a frame after its own reconnect.
		// Correlated frames carry a requestId; republishing a repeat
		// would hand the bus a duplicate, so suppress it here.
		if id, ok := f.Payload[auth.KeyRequestID].(string); ok && id != "" {
			if r.isDuplicate(f.Name + ":" + id) {
				continue
			}
		}

		r.bus.Publish(f.Name, bus.Payload(f.Payload))
	}
}

// isDuplicate checks if a frame key was already seen
func (r *Relay) isDuplicate(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.seenIDs[key]; exists {
		return true
	}

	r.seenIDs[key] = struct{}{}
	r.seenIDsList = append(r.seenIDsList, key)

	// Evict oldest if over limit
	if len(r.seenIDsList) > maxSeenIDs {
		oldest := r.seenIDsList[0]
		delete(r.seenIDs, oldest)
		r.seenIDsList = r.seenIDsList[1:]
	}

	return false
}

// scheduleRefresh re-dials the endpoint on a fixed interval so a
// server-side idle cutoff never surprises an in-flight forward.
func (r *Relay) scheduleRefresh(ctx context.Context) {
	ticker := time.NewTicker(r.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			log.Printf("Scheduled relay refresh (%s interval)", r.refreshEvery)

			r.mu.Lock()
			if r.conn != nil {
				r.conn.Close()
				r.conn = nil
			}
			r.mu.Unlock()

			if err := r.connect(ctx); err != nil {
				log.Printf("Scheduled relay refresh failed: %v", err)
			}
		}
	}
}
