// Package terminal is the line-oriented TCP debug console of spec.md
// §6: a human (or script) connects over plain TCP and issues
// whitespace-separated commands against one robot's Runtime, Parameter
// Registry, Safety Controller, and PubSub router.
//
// Grounded on terminal/terminal.go's Start(ctx, ...)/handleConnection
// accept-loop shape and terminal/commands.go's name-keyed
// CommandRegistry, generalized from "robot_manager" commands to
// "runtime/param/safety/pubsub" commands.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"roverd/diag"
	"roverd/param"
	"roverd/pubsub"
	"roverd/runtime"
	"roverd/safety"
)

// Deps bundles the collaborators every terminal command may address.
type Deps struct {
	Engine *runtime.Engine
	Params *param.Registry
	Safety *safety.Controller
	Router *pubsub.Router
}

// Start listens on addr and serves terminal connections until ctx is
// cancelled. cancel is handed to sessions so a "stop" command can shut
// the whole process down, mirroring terminal.Start's robot_manager +
// cancel parameter pair.
func Start(ctx context.Context, addr string, deps Deps, cancel context.CancelFunc) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api/terminal: listen: %w", err)
	}
	defer listener.Close()

	diag.Printf("api/terminal: listening on %s", addr)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					diag.Printf("api/terminal: accept: %v", err)
					continue
				}
			}
			go handleConnection(ctx, conn, deps, cancel)
		}
	}()

	<-ctx.Done()
	diag.Printf("api/terminal: shutting down")
	return nil
}

func handleConnection(ctx context.Context, conn net.Conn, deps Deps, cancel context.CancelFunc) {
	defer conn.Close()

	cmdCtx := &CommandContext{Conn: conn, Deps: deps, Cancel: cancel}

	conn.Write([]byte("=== roverd terminal ===\n"))
	conn.Write([]byte("Type 'help' for available commands.\n> "))

	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-ctx.Done():
			conn.Write([]byte("\nsession ended (shutdown)\n"))
			cmdCtx.unsubscribeLocked()
			return
		default:
		}

		if !scanner.Scan() {
			cmdCtx.unsubscribeLocked()
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			conn.Write([]byte("> "))
			continue
		}

		fields := strings.Fields(line)
		name, args := fields[0], fields[1:]

		if err := DefaultRegistry.ExecuteCommand(cmdCtx, name, args); err != nil {
			if err == errExit {
				cmdCtx.unsubscribeLocked()
				return
			}
			conn.Write([]byte(fmt.Sprintf("error: %v\n", err)))
		}
		conn.Write([]byte("> "))
	}
}
