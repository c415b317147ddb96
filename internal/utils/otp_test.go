package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	for _, digits := range []int{4, 6, 8} {
		code, err := GenerateOTP(digits)
		require.NoError(t, err)
		assert.Len(t, code, digits)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', code)
		}
	}

	code, err := GenerateOTP(0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultOTPDigits)
}

func TestEqualOTP(t *testing.T) {
	assert.True(t, EqualOTP("123456", "123456"))
	assert.False(t, EqualOTP("123456", "123457"))
	assert.False(t, EqualOTP("123456", "12345"))
	assert.False(t, EqualOTP("", "1"))
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com": "ja******@example.com",
		"ab@example.com":       "a*@example.com",
		"jane@example.com":     "ja**@example.com",
		"a@example.com":        "*@example.com",
		"@example.com":         "@example.com",
		"nodomain":             "********",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	ok, err := h.Verify(hash, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("not-a-hash", "x")
	assert.Error(t, err)

	ok, err = h.Verify(hash, strings.Repeat("a", 73))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Hash(strings.Repeat("a", 73))
	assert.Error(t, err)

	assert.Equal(t, 10, NewBcryptHasher(1).Cost)
}
