package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
)

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		wantFields []string
	}{
		{name: "valid", email: "agent@example.com", password: "secret1"},
		{name: "padded email is fine", email: "  agent@example.com ", password: "123456"},
		{name: "bad email", email: "agent", password: "secret1", wantFields: []string{"email"}},
		{name: "display-name form rejected", email: "Agent <agent@example.com>", password: "secret1", wantFields: []string{"email"}},
		{name: "short password", email: "agent@example.com", password: "12345", wantFields: []string{"password"}},
		{name: "both", email: "", password: "", wantFields: []string{"email", "password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.email, tt.password)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			var fe apperror.FieldErrors
			require.True(t, errors.As(err, &fe))
			assert.Len(t, fe, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, fe, f)
			}
		})
	}
}
