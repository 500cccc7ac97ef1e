package daemon

// connstate.go tracks the per-connection state a request handler needs:
// which registry client record it owns, the client-asserted ID from its
// Connect message (used as the arbitrator's actor identity), and its
// per-client focus (spec.md §4.8).

import (
	"github.com/google/uuid"

	"github.com/ianremillard/ccmux/internal/arbitrate"
	"github.com/ianremillard/ccmux/internal/registry"
	"github.com/ianremillard/ccmux/internal/wire"
)

// ConnState is the request router's per-connection handle, created on
// Connect and passed to every subsequent HandleMessage call for that
// connection.
type ConnState struct {
	RegistryID uint64
	WireID     uuid.UUID
	Type       wire.ClientType
}

// Actor builds the arbitrator Actor this connection acts as: TUI clients
// act as a human, everything else (MCP bridge, compat CLI) acts as the
// sole automated actor, per spec.md §4.9's "agent client" framing.
func (c *ConnState) Actor() arbitrate.Actor {
	if c.Type == wire.ClientTUI {
		return arbitrate.HumanActor(c.WireID)
	}
	return arbitrate.AgentActor
}

func (c *ConnState) isHuman() bool {
	return c.Type == wire.ClientTUI
}

func (d *Daemon) client(c *ConnState) (*registry.Client, bool) {
	return d.clients.Get(c.RegistryID)
}
