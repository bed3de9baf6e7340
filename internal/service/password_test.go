package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		pw, err := GeneratePassword(16)
		require.NoError(t, err)
		assert.Len(t, pw, 16)
		assert.True(t, strings.ContainsAny(pw, lowerChars))
		assert.True(t, strings.ContainsAny(pw, upperChars))
		assert.True(t, strings.ContainsAny(pw, digitChars))
		assert.True(t, strings.ContainsAny(pw, symbolChars))
		assert.NoError(t, ValidatePassword(pw))
		seen[pw] = true
	}
	assert.Len(t, seen, 50)

	_, err := GeneratePassword(3)
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("1234567"), ErrValidation)
	assert.NoError(t, ValidatePassword("12345678"))
	// Длина считается в символах, не в байтах
	assert.ErrorIs(t, ValidatePassword("пароль1"), ErrValidation)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("a@x.com"))
	assert.NoError(t, ValidateEmail(" a@x.com "))
	assert.ErrorIs(t, ValidateEmail("a@"), ErrValidation)
	assert.ErrorIs(t, ValidateEmail(""), ErrValidation)
}
