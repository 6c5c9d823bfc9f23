package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	names    []string
	required int32
	calls    [][]string
	err      error
}

func (c *fakeCommand) Names() []string            { return c.names }
func (c *fakeCommand) RequiredAccessLevel() int32 { return c.required }

func (c *fakeCommand) Handle(inv Invoker, args []string, reply func(string)) error {
	c.calls = append(c.calls, args)
	return c.err
}

func gm(level int32) Invoker {
	return Invoker{Name: "gm", AccessLevel: level}
}

func TestHandler_DispatchesByName(t *testing.T) {
	h := NewHandler()
	cmd := &fakeCommand{names: []string{"bot-stats"}, required: 1}
	h.Register(cmd)

	ok := h.Handle(gm(100), "bot-stats Adena", nil)
	assert.True(t, ok)
	require.Len(t, cmd.calls, 1)
	assert.Equal(t, []string{"bot-stats", "Adena"}, cmd.calls[0])
}

func TestHandler_CaseInsensitiveLookup(t *testing.T) {
	h := NewHandler()
	cmd := &fakeCommand{names: []string{"Bot-Log"}, required: 2}
	h.Register(cmd)

	assert.True(t, h.Handle(gm(100), "BOT-LOG list", nil))
	assert.Len(t, cmd.calls, 1)
}

func TestHandler_UnknownCommand(t *testing.T) {
	h := NewHandler()

	var replies []string
	ok := h.Handle(gm(100), "bot-frobnicate", func(s string) { replies = append(replies, s) })
	assert.False(t, ok)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Unknown command")
}

func TestHandler_AccessLevelEnforced(t *testing.T) {
	h := NewHandler()
	cmd := &fakeCommand{names: []string{"bot-priority"}, required: 2}
	h.Register(cmd)

	// Normal player: no admin commands at all.
	assert.False(t, h.Handle(gm(0), "bot-priority Adena LOW", nil))
	assert.Empty(t, cmd.calls)

	// Moderator: admin commands allowed, but this one needs level 2.
	var replies []string
	assert.False(t, h.Handle(gm(1), "bot-priority Adena LOW", func(s string) {
		replies = append(replies, s)
	}))
	assert.Empty(t, cmd.calls)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Insufficient access level")

	// Game master: goes through.
	assert.True(t, h.Handle(gm(2), "bot-priority Adena LOW", nil))
	assert.Len(t, cmd.calls, 1)
}

func TestHandler_CommandErrorReplied(t *testing.T) {
	h := NewHandler()
	cmd := &fakeCommand{names: []string{"bot-log"}, required: 2, err: assert.AnError}
	h.Register(cmd)

	var replies []string
	ok := h.Handle(gm(100), "bot-log", func(s string) { replies = append(replies, s) })
	assert.True(t, ok, "found and executed, even though it failed")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Command error")
}

func TestGetAccessLevel(t *testing.T) {
	assert.Nil(t, GetAccessLevel(-1))
	assert.Equal(t, "User", GetAccessLevel(0).Name)
	assert.Equal(t, "Game Master", GetAccessLevel(2).Name)

	// Undefined levels fall back to the highest level at or below.
	assert.Equal(t, "Game Master", GetAccessLevel(50).Name)
	assert.Equal(t, "Administrator", GetAccessLevel(200).Name)
}
