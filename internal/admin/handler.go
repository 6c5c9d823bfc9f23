package admin

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Invoker identifies the game master issuing a command.
type Invoker struct {
	Name        string
	AccessLevel int32
}

// Command is the interface for bot admin commands (//bot-*).
// Each command registers one or more names and a required access level.
type Command interface {
	// Handle executes the command. args includes command name at [0];
	// reply delivers response lines back to the invoker.
	Handle(inv Invoker, args []string, reply func(string)) error
	// Names returns all registered command names (without // prefix).
	Names() []string
	// RequiredAccessLevel returns the minimum access level to use this command.
	RequiredAccessLevel() int32
}

// Handler dispatches bot admin commands.
// Thread-safe: commands are registered once at startup, then read-only.
type Handler struct {
	mu   sync.RWMutex
	cmds map[string]Command // name → Command (lowercase)
}

// NewHandler creates a new command handler.
func NewHandler() *Handler {
	return &Handler{
		cmds: make(map[string]Command, 8),
	}
}

// Register registers a command.
// All command names are lowercased for case-insensitive lookup.
func (h *Handler) Register(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range cmd.Names() {
		h.cmds[strings.ToLower(name)] = cmd
	}
}

// Handle processes a message starting with //.
// Returns true if a command was found and executed.
// text is the full message WITHOUT the // prefix.
func (h *Handler) Handle(inv Invoker, text string, reply func(string)) bool {
	if text == "" {
		return false
	}
	if reply == nil {
		reply = func(string) {}
	}

	parts := strings.Fields(text)
	cmdName := strings.ToLower(parts[0])

	h.mu.RLock()
	cmd, ok := h.cmds[cmdName]
	h.mu.RUnlock()

	if !ok {
		reply("Unknown command: //" + cmdName)
		return false
	}

	al := GetAccessLevel(inv.AccessLevel)
	if al == nil || !al.CanUseAdminCommands {
		slog.Warn("unauthorized admin command attempt",
			"invoker", inv.Name,
			"command", cmdName,
			"accessLevel", inv.AccessLevel)
		return false
	}

	if inv.AccessLevel < cmd.RequiredAccessLevel() {
		reply(fmt.Sprintf("Insufficient access level for //%s (need %d, have %d)",
			cmdName, cmd.RequiredAccessLevel(), inv.AccessLevel))
		slog.Warn("admin command access denied",
			"invoker", inv.Name,
			"command", cmdName,
			"required", cmd.RequiredAccessLevel(),
			"actual", inv.AccessLevel)
		return false
	}

	slog.Info("admin command",
		"invoker", inv.Name,
		"command", text)

	if err := cmd.Handle(inv, parts, reply); err != nil {
		reply(fmt.Sprintf("Command error: %s", err))
		slog.Error("admin command failed",
			"invoker", inv.Name,
			"command", text,
			"error", err)
	}

	return true
}

// CommandCount returns number of registered commands.
func (h *Handler) CommandCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cmds)
}
