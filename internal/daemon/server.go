package daemon

// server.go is the daemon's Unix-socket listener: an
// Accept loop handing each new connection a reader goroutine and a
// writer goroutine, mirroring the one-goroutine-per-connection shape of
// the original catherdd daemon, generalized from its one-shot
// newline-JSON requests to this protocol's persistent, multiplexed,
// length-framed connection.

import (
	"io"
	"net"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ianremillard/ccmux/internal/registry"
	"github.com/ianremillard/ccmux/internal/wire"
)

// Server owns the listeners and drives the accept loop. It is a thin
// wrapper around Daemon: Daemon holds all the state, Server only owns
// the network plumbing.
type Server struct {
	d        *Daemon
	listener net.Listener
}

// Listen removes any stale Unix socket at socketPath and binds a new
// listener. Only the Unix socket is bound; no TCP listener is opened.
func Listen(d *Daemon, socketPath string) (*Server, error) {
	_ = os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{d: d, listener: l}, nil
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return nil
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections. Connections already accepted
// run to their own completion as their peer disconnects.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	client := s.d.clients.Register(wire.ClientUnknown)
	c := &ConnState{RegistryID: client.ID, Type: wire.ClientUnknown}

	writerDone := make(chan struct{})
	go s.writeLoop(conn, client, writerDone)

	s.readLoop(conn, c)

	s.d.OnDisconnect(c)
	close(client.Outbound)
	<-writerDone
}

// readLoop decodes one frame at a time off conn and dispatches it
// through the Daemon's request router, writing any direct response
// straight to conn and any broadcast through the registry. A session
// broadcast reaches the session's other attached clients, not this
// one; a global broadcast reaches every client, this one included.
func (s *Server) readLoop(conn net.Conn, c *ConnState) {
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("connection read error")
			}
			return
		}

		msg, err := wire.DecodeClient(payload)
		if err != nil {
			log.Debug().Err(err).Msg("malformed client message")
			continue
		}

		result := s.d.HandleMessage(c, msg)
		if !s.deliver(conn, c, result) {
			return
		}
	}
}

// deliver applies the outcome of one HandleMessage call: it writes the
// direct response (if any) straight to conn, since that response is
// meaningful only to the requester, and routes any broadcast or
// follow-up traffic through the client registry so slow peers never
// block this connection's own reader.
func (s *Server) deliver(conn net.Conn, c *ConnState, result Result) bool {
	switch result.Kind {
	case KindNoResponse:
		return true

	case KindCloseConnection:
		if result.Response != nil {
			writeMessage(conn, result.Response)
		}
		return false

	case KindResponse:
		return writeMessage(conn, result.Response)

	case KindResponseWithFollowUp:
		if !writeMessage(conn, result.Response) {
			return false
		}
		for _, m := range result.FollowUp {
			if !writeMessage(conn, m) {
				return false
			}
		}
		return true

	case KindResponseWithBroadcast:
		if !writeMessage(conn, result.Response) {
			return false
		}
		s.d.clients.BroadcastToSessionExcept(result.BroadcastTo, c.RegistryID, result.Broadcast)
		return true

	case KindResponseWithGlobalBroadcast:
		if !writeMessage(conn, result.Response) {
			return false
		}
		s.d.clients.BroadcastGlobal(result.Broadcast)
		return true
	}
	return true
}

func writeMessage(conn net.Conn, msg wire.ServerMessage) bool {
	if msg == nil {
		return true
	}
	payload, err := wire.EncodeServer(msg)
	if err != nil {
		log.Debug().Err(err).Msg("failed to encode server message")
		return true
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		log.Debug().Err(err).Msg("connection write error")
		return false
	}
	return true
}

// writeLoop pumps a client's outbound broadcast channel to its
// connection, running independently of the reader so a broadcast never
// waits on that connection's next incoming request.
func (s *Server) writeLoop(conn net.Conn, client *registry.Client, done chan struct{}) {
	defer close(done)
	for msg := range client.Outbound {
		if !writeMessage(conn, msg) {
			return
		}
	}
}
