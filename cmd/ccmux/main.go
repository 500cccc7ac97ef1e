// ccmux is a thin command-line client over the ccmuxd wire protocol: a
// compat surface for listing, creating, and attaching to sessions from
// a plain terminal, without the grid-rendered TUI front end.
//
// It starts the daemon automatically if the configured socket isn't
// reachable; detach from an attached pane with Ctrl-].
package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ianremillard/ccmux/internal/autostart"
	"github.com/ianremillard/ccmux/internal/config"
	"github.com/ianremillard/ccmux/internal/wire"
)

const detachByte = 0x1D // Ctrl-]

func main() {
	root := &cobra.Command{Use: "ccmux", Short: "ccmux compat client"}

	root.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "list sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(func(conn net.Conn) error {
				reply, err := roundTrip(conn, wire.ListSessions{})
				if err != nil {
					return err
				}
				list, ok := reply.(wire.SessionList)
				if !ok {
					return fmt.Errorf("unexpected reply %T", reply)
				}
				for _, s := range list.Sessions {
					fmt.Printf("%s\t%s\twindows=%d\tclients=%d\n", s.ID, s.Name, s.WindowCount, s.AttachedClients)
				}
				return nil
			})
		},
	})

	var newCmdline string
	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "create a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(func(conn net.Conn) error {
				reply, err := roundTrip(conn, wire.CreateSession{Name: args[0], Command: newCmdline})
				if err != nil {
					return err
				}
				details, ok := reply.(wire.SessionCreatedWithDetails)
				if !ok {
					if errMsg, ok := reply.(wire.Error); ok {
						return fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
					}
					return fmt.Errorf("unexpected reply %T", reply)
				}
				fmt.Println(details.SessionID)
				return nil
			})
		},
	}
	newCmd.Flags().StringVar(&newCmdline, "cmd", "", "command to run in the session's first pane")
	root.AddCommand(newCmd)

	root.AddCommand(&cobra.Command{
		Use:   "kill <session-id>",
		Short: "destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			return withConn(func(conn net.Conn) error {
				reply, err := roundTrip(conn, wire.DestroySession{ID: id})
				if err != nil {
					return err
				}
				if errMsg, ok := reply.(wire.Error); ok {
					return fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "attach <session-id>",
		Short: "attach your terminal to a session's active pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			return attach(id)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ccmux:", err)
		os.Exit(1)
	}
}

func dial() (net.Conn, error) {
	socketPath := config.DefaultSocketPath()
	ctx, cancel := context.WithTimeout(context.Background(), autostart.DefaultTimeout)
	defer cancel()
	if err := autostart.Ensure(ctx, socketPath, autostart.Options{DaemonBinaryName: "ccmuxd"}); err != nil {
		return nil, fmt.Errorf("start daemon: %w", err)
	}
	return net.Dial("unix", socketPath)
}

func withConn(fn func(conn net.Conn) error) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := handshake(conn); err != nil {
		return err
	}
	return fn(conn)
}

func handshake(conn net.Conn) error {
	reply, err := roundTrip(conn, wire.Connect{
		ClientID:        uuid.New(),
		ProtocolVersion: wire.ProtocolVersion,
		ClientType:      wire.ClientCompat,
	})
	if err != nil {
		return err
	}
	if _, ok := reply.(wire.Connected); !ok {
		return fmt.Errorf("handshake failed: %v", reply)
	}
	return nil
}

// roundTrip writes one client message and reads back the first frame
// the daemon sends in response. Broadcast-only traffic interleaved on
// the same connection (unlikely this early in a short-lived CLI
// invocation) is not filtered out separately; callers that need that
// distinction use wire.IsBroadcastMessage.
func roundTrip(conn net.Conn, msg wire.ClientMessage) (wire.ServerMessage, error) {
	payload, err := wire.EncodeClient(msg)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return nil, err
	}
	respPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return wire.DecodeServer(respPayload)
}

// attach connects the terminal to a session's active pane, switching
// the local terminal to raw mode and copying bytes in both directions
// until the remote pane closes or the user detaches with Ctrl-].
func attach(sessionID uuid.UUID) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := handshake(conn); err != nil {
		return err
	}

	reply, err := roundTrip(conn, wire.AttachSession{ID: sessionID})
	if err != nil {
		return err
	}
	attached, ok := reply.(wire.Attached)
	if !ok {
		if errMsg, ok := reply.(wire.Error); ok {
			return fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
		}
		return fmt.Errorf("unexpected reply %T", reply)
	}
	if len(attached.Panes) == 0 {
		return fmt.Errorf("session has no panes")
	}
	paneID := attached.Panes[0].ID
	if len(attached.Windows) > 0 && attached.Windows[0].ActivePaneID != nil {
		want := *attached.Windows[0].ActivePaneID
		for _, p := range attached.Panes {
			if p.ID == want {
				paneID = p.ID
				break
			}
		}
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stdout, "\r\nattached to %s (detach: Ctrl-])\r\n", sessionID)

	done := make(chan struct{}, 1)
	go readDaemonOutput(conn, paneID, done)
	go forwardStdin(conn, paneID, done)
	<-done
	return nil
}

func readDaemonOutput(conn net.Conn, paneID uuid.UUID, done chan struct{}) {
	defer signalDone(done)
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		msg, err := wire.DecodeServer(payload)
		if err != nil {
			continue
		}
		out, ok := msg.(wire.Output)
		if !ok || out.PaneID != paneID {
			continue
		}
		os.Stdout.Write(out.Data)
	}
}

func forwardStdin(conn net.Conn, paneID uuid.UUID, done chan struct{}) {
	defer signalDone(done)
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				if buf[i] == detachByte {
					return
				}
			}
			payload, encErr := wire.EncodeClient(wire.Input{PaneID: paneID, Data: append([]byte(nil), buf[:n]...)})
			if encErr == nil {
				_ = wire.WriteFrame(conn, payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func signalDone(done chan struct{}) {
	select {
	case done <- struct{}{}:
	default:
	}
}
