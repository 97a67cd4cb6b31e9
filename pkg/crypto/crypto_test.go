package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plaintext, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey())
	require.NoError(t, err)

	first, err := c.Encrypt("same input")
	require.NoError(t, err)

	second, err := c.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	// Flip one hex digit at the tail of the ciphertext.
	tail := sealed[len(sealed)-1]

	replacement := "0"
	if tail == '0' {
		replacement = "1"
	}

	tampered := sealed[:len(sealed)-1] + replacement

	_, err = c.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey())
	require.NoError(t, err)

	_, err = c.Decrypt("not hex")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Decrypt("abcd")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewCipher([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewCipher([]byte(strings.Repeat("x", 33)))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestNewCipherFromHex(t *testing.T) {
	t.Parallel()

	c, err := NewCipherFromHex(hex.EncodeToString(testKey()))
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = NewCipherFromHex("zz")
	assert.Error(t, err)

	_, err = NewCipherFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
