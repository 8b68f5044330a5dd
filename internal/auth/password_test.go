package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("red12345")
	require.NoError(t, err)
	assert.NotEqual(t, "red12345", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.NoError(t, h.Compare(hash, "red12345"))
	assert.Error(t, h.Compare(hash, "red12346"))
	assert.ErrorIs(t, h.Compare("", "red12345"), bcrypt.ErrMismatchedHashAndPassword)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).Cost)
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(1).Cost)
	assert.Equal(t, bcrypt.MaxCost, NewBcryptHasher(99).Cost)
}

func TestValidEmail(t *testing.T) {
	good := []string{"jane@example.com", "j.doe+tag@mail.example.org", "x@sub-domain.example.io"}
	bad := []string{
		"", "jane", "jane@", "@example.com", "jane@localhost", "Jane <jane@example.com>", "jane@example.", "jane@.example.com",
		"a@x_y.com", "a@-x.com", "a@b.c", "a@[1.2.3.4]", "a@x.123", "jane@example.com.",
	}
	for _, e := range good {
		assert.True(t, validEmail(e), e)
	}
	for _, e := range bad {
		assert.False(t, validEmail(e), e)
	}
}

func TestCheckPassword(t *testing.T) {
	assert.ErrorIs(t, checkPassword(""), ErrValidation)
	assert.ErrorIs(t, checkPassword("short"), ErrValidation)
	assert.NoError(t, checkPassword("long enough"))
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	verr := &ValidationError{}
	verr.add("password", "is required")
	verr.add("email", "is invalid")
	verr.add("email", "is required")
	assert.Equal(t, "validation failed: email is invalid; password is required", verr.Error())
}
