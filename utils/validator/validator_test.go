package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSignUp struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,max=10"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type testEvent struct {
	Kind string `json:"kind" validate:"required,auth_event_kind"`
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		input      any
		wantFields []string
	}{
		{
			name:  "valid sign-up",
			input: testSignUp{Email: "a@example.com", Password: "longenough", Name: "Ann", Phone: "+81 90-1234-5678"},
		},
		{
			name:  "phone is optional",
			input: testSignUp{Email: "a@example.com", Password: "longenough", Name: "Ann"},
		},
		{
			name:       "missing and malformed fields",
			input:      testSignUp{Email: "nope", Password: "short"},
			wantFields: []string{"email", "password", "name"},
		},
		{
			name:       "bad phone",
			input:      testSignUp{Email: "a@example.com", Password: "longenough", Name: "Ann", Phone: "call me"},
			wantFields: []string{"phone"},
		},
		{
			name:  "known event kind",
			input: testEvent{Kind: "SIGNED_OUT"},
		},
		{
			name:       "unknown event kind",
			input:      testEvent{Kind: "PASSWORD_RECOVERY"},
			wantFields: []string{"kind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Errors, len(tt.wantFields))
			for _, field := range tt.wantFields {
				assert.Contains(t, verr.Errors, field)
			}
		})
	}
}

func TestValidationError_Messages(t *testing.T) {
	v := New()

	err := v.Validate(testSignUp{Email: "a@example.com", Password: "short", Name: "Ann"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password must be at least 8 characters long", verr.Errors["password"])
	assert.Equal(t, "validation failed: password must be at least 8 characters long", err.Error())
}

func TestValidator_ValidateVar(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateVar("4b1e2f8a-4a4e-4c42-9a3a-1f9b2c3d4e5f", "uuid"))
	assert.Error(t, v.ValidateVar("client-1", "uuid"))
}
