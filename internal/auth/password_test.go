package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Cost 4 keeps each hash in the low milliseconds.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(bcrypt.MinCost)
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("s3cret!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$04$"), "unexpected hash %q", hash)
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	h1, err := ps.Hash("same-password")
	require.NoError(t, err)
	h2, err := ps.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "salt must be random")
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	_, err := ps.Hash(strings.Repeat("a", 73))
	assert.Error(t, err)

	_, err = ps.Hash(strings.Repeat("a", 72))
	assert.NoError(t, err)
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct horse")
	require.NoError(t, err)

	tests := []struct {
		name      string
		hash      string
		password  string
		wantErr   bool
		wantMatch error
	}{
		{name: "correct password", hash: hash, password: "correct horse"},
		{name: "wrong password", hash: hash, password: "battery staple", wantErr: true, wantMatch: ErrInvalidPassword},
		{name: "empty password", hash: hash, password: "", wantErr: true, wantMatch: ErrInvalidPassword},
		{name: "garbage hash", hash: "not-a-hash", password: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantMatch != nil {
				assert.True(t, errors.Is(err, tt.wantMatch))
			}
		})
	}
}
