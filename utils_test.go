package filedock_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
	"github.com/stretchr/testify/assert"
)

func TestIsValidOwnerID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"alice", true},
		{"user-42", true},
		{"a1b2c3d4-e5f6-7890-abcd-ef1234567890", true},
		{"ünïcødé", true},
		{"auth0|5f3c", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"a%2Fb", false},
		{"a+b", false},
		{"a b", false},
		{"a\tb", false},
		{"a\x00b", false},
		{"a\x7fb", false},
		{"a\\b", false},
		{"a?b", false},
		{"a#b", false},
		{"~a", false},
		{string([]byte{0xff, 0xfe}), false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, filedock.IsValidOwnerID(tt.id))
		})
	}
}

func TestIsValidOwnerID_RoundTripsThroughObjectKey(t *testing.T) {
	for _, owner := range []string{"alice", "auth0|5f3c", "ünïcødé", "a.b_c-d"} {
		id := uuid.New()
		gotOwner, gotID, err := filedock.ParseObjectKey(filedock.ObjectKey(owner, id))
		assert.NoError(t, err)
		assert.Equal(t, owner, gotOwner)
		assert.Equal(t, id, gotID)
	}
}
