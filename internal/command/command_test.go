package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/protocol"
)

func block(lines ...string) protocol.Block {
	return protocol.Block{Lines: lines}
}

func TestParse_Send(t *testing.T) {
	t.Run("valid send", func(t *testing.T) {
		cmd := Parse(block("SEND", "alice", "bob", "hello", "hi there", "second line", "."))
		send, ok := cmd.(Send)
		require.True(t, ok, "got %#v", cmd)
		assert.Equal(t, domain.Message{
			Sender:   "alice",
			Receiver: "bob",
			Subject:  "hello",
			Body:     []string{"hi there", "second line"},
		}, send.Message)
	})

	t.Run("empty subject and body", func(t *testing.T) {
		cmd := Parse(block("SEND", "alice", "bob", "", "."))
		send, ok := cmd.(Send)
		require.True(t, ok, "got %#v", cmd)
		assert.Empty(t, send.Message.Subject)
		assert.Empty(t, send.Message.Body)
	})

	t.Run("trailing content", func(t *testing.T) {
		cmd := Parse(protocol.Block{Lines: []string{"SEND", "alice", "bob", "s", "b", "."}, Trailing: true})
		inv, ok := cmd.(Invalid)
		require.True(t, ok)
		assert.Equal(t, protocol.ReasonInvalidFormat, inv.Reason)
	})

	t.Run("missing terminator", func(t *testing.T) {
		_, ok := Parse(block("SEND", "alice", "bob", "s")).(Invalid)
		assert.True(t, ok)
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, lines := range [][]string{
			{"SEND", "Alice", "bob", "s", "."},
			{"SEND", "alice", "bob_1", "s", "."},
			{"SEND", "alice", "toolongname", "s", "."},
			{"SEND", "", "bob", "s", "."},
		} {
			_, ok := Parse(block(lines...)).(Invalid)
			assert.True(t, ok, "lines %q", lines)
		}
	})
}

func TestParse_ListReadDel(t *testing.T) {
	assert.Equal(t, List{Username: "bob"}, Parse(block("LIST", "bob")))
	assert.Equal(t, Read{Username: "bob", Ordinal: 2}, Parse(block("READ", "bob", "2")))
	assert.Equal(t, Del{Username: "bob", Ordinal: 1}, Parse(block("DEL", "bob", " 1 ")))

	t.Run("non numeric ordinal", func(t *testing.T) {
		inv, ok := Parse(block("READ", "bob", "one")).(Invalid)
		require.True(t, ok)
		assert.Equal(t, ReasonBadNumber, inv.Reason)
	})

	t.Run("zero and negative ordinals are left to the store", func(t *testing.T) {
		assert.Equal(t, Read{Username: "bob", Ordinal: 0}, Parse(block("READ", "bob", "0")))
		assert.Equal(t, Del{Username: "bob", Ordinal: -3}, Parse(block("DEL", "bob", "-3")))
	})

	t.Run("wrong field count", func(t *testing.T) {
		_, ok := Parse(block("LIST")).(Invalid)
		assert.True(t, ok)
		_, ok = Parse(block("DEL", "bob")).(Invalid)
		assert.True(t, ok)
	})

	t.Run("invalid username", func(t *testing.T) {
		_, ok := Parse(block("LIST", "BOB")).(Invalid)
		assert.True(t, ok)
	})
}

func TestParse_QuitAndUnknown(t *testing.T) {
	assert.Equal(t, Quit{}, Parse(block("QUIT")))

	for _, name := range []string{"quit", "HELO", "SEND now", " LIST", "", "LIST "} {
		inv, ok := Parse(block(name)).(Invalid)
		require.True(t, ok, "name %q", name)
		assert.Equal(t, ReasonUnknownCommand, inv.Reason)
	}
}
