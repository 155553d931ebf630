package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required,len=6,numeric"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(sampleRequest{Email: "a@x.com", Code: "123456"})
	assert.NoError(t, err)
}

func TestValidate_FieldErrors(t *testing.T) {
	err := Validate(sampleRequest{Email: "not-an-email", Code: "12"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, "must be a valid email address", fields["Email"])
	assert.Equal(t, "must be exactly 6 characters", fields["Code"])
	assert.Contains(t, valErr.Error(), "Email")
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(sampleRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["Email"])
}
