package registry_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/registry"
	"github.com/ianremillard/ccmux/internal/wire"
)

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	r := registry.New()
	c1 := r.Register(wire.ClientTUI)
	c2 := r.Register(wire.ClientMCP)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestBroadcastToSessionOnlyReachesAttached(t *testing.T) {
	r := registry.New()
	sessionID := uuid.New()
	other := uuid.New()

	inSession := r.Register(wire.ClientTUI)
	r.Attach(inSession.ID, sessionID)
	outOfSession := r.Register(wire.ClientTUI)
	r.Attach(outOfSession.ID, other)

	r.BroadcastToSession(sessionID, wire.Pong{})

	select {
	case <-inSession.Outbound:
	default:
		t.Fatal("expected message for attached client")
	}
	select {
	case <-outOfSession.Outbound:
		t.Fatal("unattached client should not receive the broadcast")
	default:
	}
}

func TestBroadcastToSessionExceptExcludesOriginator(t *testing.T) {
	r := registry.New()
	sessionID := uuid.New()
	a := r.Register(wire.ClientTUI)
	b := r.Register(wire.ClientTUI)
	r.Attach(a.ID, sessionID)
	r.Attach(b.ID, sessionID)

	r.BroadcastToSessionExcept(sessionID, a.ID, wire.Pong{})

	select {
	case <-a.Outbound:
		t.Fatal("excluded client should not receive the broadcast")
	default:
	}
	select {
	case <-b.Outbound:
	default:
		t.Fatal("expected message for non-excluded client")
	}
}

func TestBroadcastGlobalReachesEveryone(t *testing.T) {
	r := registry.New()
	a := r.Register(wire.ClientTUI)
	b := r.Register(wire.ClientMCP)

	r.BroadcastGlobal(wire.Pong{})

	for _, c := range []*registry.Client{a, b} {
		select {
		case <-c.Outbound:
		default:
			t.Fatalf("client %d missed global broadcast", c.ID)
		}
	}
}

func TestDropOnFullOutboundDoesNotBlock(t *testing.T) {
	r := registry.New()
	c := r.Register(wire.ClientTUI)

	for i := 0; i < registry.OutboundQueueDepth+10; i++ {
		r.BroadcastGlobal(wire.Pong{})
	}
	assert.Len(t, c.Outbound, registry.OutboundQueueDepth)
}

func TestAttachedCountReflectsRegistry(t *testing.T) {
	r := registry.New()
	sessionID := uuid.New()
	a := r.Register(wire.ClientTUI)
	b := r.Register(wire.ClientTUI)
	r.Attach(a.ID, sessionID)
	r.Attach(b.ID, sessionID)
	assert.Equal(t, 2, r.AttachedCount(sessionID))

	r.Detach(a.ID)
	assert.Equal(t, 1, r.AttachedCount(sessionID))
}

func TestUnregisterRemovesClient(t *testing.T) {
	r := registry.New()
	c := r.Register(wire.ClientTUI)
	r.Unregister(c.ID)
	_, ok := r.Get(c.ID)
	require.False(t, ok)
}
