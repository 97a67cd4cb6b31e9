// Package crypto seals stored account credentials with AES-256-GCM under a
// single 32-byte master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required master key length in bytes.
const KeySize = 32

var (
	// ErrInvalidKeySize is returned when the master key is not 32 bytes.
	ErrInvalidKeySize = errors.New("master key must be exactly 32 bytes")
	// ErrInvalidCiphertext is returned when a sealed value cannot be decoded
	// or fails authentication.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Cipher encrypts and decrypts credential strings.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a raw 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex creates a cipher from a hex-encoded 32-byte master key,
// the form the key takes in configuration.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}

	return NewCipher(key)
}

// Encrypt seals the plaintext under a fresh random nonce and returns
// hex(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())

	_, err := io.ReadFull(rand.Reader, nonce)
	if err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input fails with
// ErrInvalidCiphertext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}
