// Package registry implements the client registry and broadcast fabric
// of spec.md §4.10: per-client bounded outbound channels, and the three
// fan-out primitives (to-session, to-session-except, global) used by
// every broadcasting handler.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ianremillard/ccmux/internal/wire"
)

// ClientType mirrors wire.ClientType; kept as its own alias so this
// package's public surface doesn't force every caller to import wire
// just to name a client type.
type ClientType = wire.ClientType

// OutboundQueueDepth bounds each client's outbound channel. Once full,
// further sends are dropped for that client only, per spec.md §4.10's
// "best-effort... must not block on slow clients."
const OutboundQueueDepth = 256

// Focus is the per-client view of "which pane am I looking at," held
// separately from any global notion of focus so that concurrent agents
// attached to the same session do not fight over a single cursor
// (spec.md §4.8).
type Focus struct {
	SessionID *uuid.UUID
	WindowID  *uuid.UUID
	PaneID    *uuid.UUID
}

// Client is a connected client's registry record.
type Client struct {
	ID              uint64
	Type            ClientType
	Outbound        chan wire.ServerMessage
	AttachedSession *uuid.UUID
	Focus           Focus
}

// Registry tracks every connected client and dispatches broadcasts to
// them. A single mutex guards the client map; per spec.md §5 this is a
// deliberately coarse lock since client-registry operations are cheap
// and brief (channel sends never block thanks to the bounded,
// drop-on-full channels).
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
	nextID  uint64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{clients: make(map[uint64]*Client)}
}

// Register creates and stores a new client record of the given type,
// returning it with a freshly assigned monotonic ID.
func (r *Registry) Register(clientType ClientType) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := &Client{
		ID:       r.nextID,
		Type:     clientType,
		Outbound: make(chan wire.ServerMessage, OutboundQueueDepth),
	}
	r.clients[c.ID] = c
	return c
}

// Unregister removes clientID from the registry. Callers are
// responsible for also clearing the client's arbitration locks and
// mirror registrations, per spec.md §5's cancellation contract.
func (r *Registry) Unregister(clientID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

// Get returns the client record for clientID, if still connected.
func (r *Registry) Get(clientID uint64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// Attach sets clientID's attached-session field.
func (r *Registry) Attach(clientID uint64, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientID]; ok {
		id := sessionID
		c.AttachedSession = &id
	}
}

// Detach clears clientID's attached-session field.
func (r *Registry) Detach(clientID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientID]; ok {
		c.AttachedSession = nil
	}
}

// AttachedCount returns the number of clients currently attached to
// sessionID, per spec.md §3 invariant 6.
func (r *Registry) AttachedCount(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.clients {
		if c.AttachedSession != nil && *c.AttachedSession == sessionID {
			n++
		}
	}
	return n
}

// send delivers msg to c's outbound channel, dropping it if the channel
// is full. The drop is logged at debug level, not surfaced to the
// sender: per spec.md §4.10 a slow consumer must never block the
// broadcaster, and a dropped broadcast is not an error condition.
func send(c *Client, msg wire.ServerMessage) {
	select {
	case c.Outbound <- msg:
	default:
		log.Debug().Uint64("client_id", c.ID).Msg("dropped broadcast: outbound queue full")
	}
}

// BroadcastToSession delivers msg to every client attached to
// sessionID.
func (r *Registry) BroadcastToSession(sessionID uuid.UUID, msg wire.ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.AttachedSession != nil && *c.AttachedSession == sessionID {
			send(c, msg)
		}
	}
}

// BroadcastToSessionExcept delivers msg to every client attached to
// sessionID other than excludedClientID.
func (r *Registry) BroadcastToSessionExcept(sessionID uuid.UUID, excludedClientID uint64, msg wire.ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.ID == excludedClientID {
			continue
		}
		if c.AttachedSession != nil && *c.AttachedSession == sessionID {
			send(c, msg)
		}
	}
}

// BroadcastGlobal delivers msg to every connected client.
func (r *Registry) BroadcastGlobal(msg wire.ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		send(c, msg)
	}
}
