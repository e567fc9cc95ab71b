package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected error
	}{
		{"Valid lowercase", "alice", nil},
		{"Valid digits", "12345678", nil},
		{"Valid mixed", "if22b001", nil},
		{"Valid single char", "a", nil},
		{"Invalid - empty", "", ErrNameEmpty},
		{"Invalid - too long", "abcdefghi", ErrNameTooLong},
		{"Invalid - uppercase", "Alice", ErrInvalidName},
		{"Invalid - underscore", "a_b", ErrInvalidName},
		{"Invalid - space", "a b", ErrInvalidName},
		{"Invalid - path", "../x", ErrInvalidName},
		{"Invalid - unicode", "äbc", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.expected == nil {
				assert.NoError(t, err)
				assert.True(t, IsValidName(tt.input))
				return
			}
			assert.ErrorIs(t, err, tt.expected)
			assert.False(t, IsValidName(tt.input))
		})
	}
}
