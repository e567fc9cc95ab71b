package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"twmailer/backend/internal/domain"
)

func TestResponseEncode(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{"ok", OK(), "OK\n"},
		{"bare err", Err(""), "ERR\n"},
		{"err with reason", Err(ReasonNoInbox), "ERR User has no inbox\n"},
		{"invalid format", Err(ReasonInvalidFormat), "ERR Invalid message format\n"},
		{"ok with text", OKWithText("Sender: alice\n"), "OK\nSender: alice\n\n"},
		{"welcome", Welcome(""), DefaultWelcome + "\n"},
		{"empty", Response{}, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.String())
		})
	}
}

func TestListing(t *testing.T) {
	t.Run("with messages", func(t *testing.T) {
		resp := Listing("bob", []domain.MessageSummary{
			{Ordinal: 1, Subject: "hello"},
			{Ordinal: 2, Subject: ""},
		})
		assert.Equal(t, "2 Mails found in Inbox of bob\n1. hello\n2. \n", resp.String())
		assert.False(t, resp.IsOK())
		assert.False(t, resp.IsErr())
	})

	t.Run("empty inbox", func(t *testing.T) {
		resp := Listing("bob", nil)
		assert.Equal(t, "0 Mails found in Inbox of bob\n", resp.String())
	})
}

func TestResponseStatus(t *testing.T) {
	assert.True(t, OK().IsOK())
	assert.True(t, Err("").IsErr())
	assert.True(t, Err("x").IsErr())
	assert.False(t, Response{Lines: []string{"ERRATA"}}.IsErr())
}
