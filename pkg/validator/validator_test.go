package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(sampleInput{Email: "john@example.com", Password: "SecurePass123"})
	assert.NoError(t, err)
}

func TestValidate_CollectsFieldMessages(t *testing.T) {
	err := Validate(sampleInput{Email: "not-an-email", Password: "short"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Contains(t, fields, "Email")
	assert.Contains(t, fields, "Password")
	assert.Contains(t, fields["Email"], "must be a valid email address")
	assert.Contains(t, fields["Password"], "must be at least 8 characters")
}

func TestValidate_RequiredFields(t *testing.T) {
	err := Validate(sampleInput{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Contains(t, fields["Email"], "is required")
	assert.Contains(t, fields["Password"], "is required")
}

func TestValidationError_MessageListsAllFailures(t *testing.T) {
	err := Validate(sampleInput{Email: "bad", Password: ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email")
	assert.Contains(t, err.Error(), "Password")
}
