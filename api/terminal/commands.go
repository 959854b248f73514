package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"roverd/pubsub"
)

// errExit is the sentinel that terminal.go's connection loop checks
// for to disconnect cleanly, mirroring robot_commands.go's
// fmt.Errorf("exit") convention.
var errExit = errors.New("exit")

// CommandContext is the per-connection capsule handed to every
// CommandFunc, analogous to terminal/commands.go's CommandContext but
// wired to this module's runtime/param/safety/pubsub collaborators
// instead of a RobotManager/EventBus pair.
type CommandContext struct {
	Conn   net.Conn
	Deps   Deps
	Cancel context.CancelFunc

	mu    sync.Mutex
	subID pubsub.SubID
	subOn bool
}

// write is a convenience wrapper so command handlers don't each repeat
// the conn.Write([]byte(...)) dance.
func (c *CommandContext) write(format string, args ...any) {
	c.Conn.Write([]byte(fmt.Sprintf(format, args...)))
}

func (c *CommandContext) setSubscription(id pubsub.SubID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subOn {
		c.Deps.Router.Unsubscribe(c.subID)
	}
	c.subID = id
	c.subOn = true
}

func (c *CommandContext) clearSubscription() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subOn {
		return
	}
	c.Deps.Router.Unsubscribe(c.subID)
	c.subOn = false
}

// unsubscribeLocked tears down any live subscription when a connection
// closes, so a disconnected client doesn't leak a pubsub subscriber.
func (c *CommandContext) unsubscribeLocked() {
	c.clearSubscription()
}

// CommandFunc implements one terminal command.
type CommandFunc func(ctx *CommandContext, args []string) error

// CommandInfo documents one registered command, mirroring
// terminal/commands.go's CommandInfo.
type CommandInfo struct {
	Name        string
	Description string
	Usage       string
	Handler     CommandFunc
}

// CommandRegistry is a name-keyed table of terminal commands.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*CommandInfo
}

// DefaultRegistry is the process-wide command table, populated by this
// package's init() the same way terminal/init.go populates
// terminal.DefaultRegistry.
var DefaultRegistry = &CommandRegistry{commands: make(map[string]*CommandInfo)}

// RegisterCommand adds a command to DefaultRegistry.
func RegisterCommand(name, description, usage string, handler CommandFunc) {
	DefaultRegistry.mu.Lock()
	defer DefaultRegistry.mu.Unlock()
	DefaultRegistry.commands[name] = &CommandInfo{
		Name:        name,
		Description: description,
		Usage:       usage,
		Handler:     handler,
	}
}

// GetCommand looks up a command by name.
func (r *CommandRegistry) GetCommand(name string) (*CommandInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.commands[name]
	return info, ok
}

// ListCommands returns every registered command, for "help" with no
// arguments.
func (r *CommandRegistry) ListCommands() []*CommandInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CommandInfo, 0, len(r.commands))
	for _, info := range r.commands {
		out = append(out, info)
	}
	return out
}

// ExecuteCommand looks up name and runs its handler.
func (r *CommandRegistry) ExecuteCommand(ctx *CommandContext, name string, args []string) error {
	info, ok := r.GetCommand(name)
	if !ok {
		return fmt.Errorf("unknown command: %s (try 'help')", name)
	}
	return info.Handler(ctx, args)
}
