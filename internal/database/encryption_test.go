package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor(true, testSecret)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"simple text", "hello world"},
		{"unicode text", "Hello 世界 🌍"},
		{"json payload", `{"messageId":"m1","conversationId":"c1"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tc.plaintext)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ciphertext, encryptedPrefix))
			assert.NotContains(t, ciphertext, tc.plaintext)

			decrypted, err := enc.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptor_RandomNonce(t *testing.T) {
	enc, err := NewEncryptor(true, testSecret)
	require.NoError(t, err)

	a, err := enc.Encrypt("same")
	require.NoError(t, err)
	b, err := enc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(false, "")
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = enc.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestEncryptor_PlaintextPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(true, testSecret)
	require.NoError(t, err)

	out, err := enc.Decrypt(`{"legacy":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"legacy":true}`, out)

	empty, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestEncryptor_Tampered(t *testing.T) {
	enc, err := NewEncryptor(true, testSecret)
	require.NoError(t, err)

	_, err = enc.Decrypt(encryptedPrefix + "not base64!")
	assert.Error(t, err)
	_, err = enc.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)

	other, err := NewEncryptor(true, strings.Repeat("x", 40))
	require.NoError(t, err)
	sealed, err := other.Encrypt("hello")
	require.NoError(t, err)
	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewEncryptor_SecretValidation(t *testing.T) {
	_, err := NewEncryptor(true, "")
	assert.Error(t, err)
	_, err = NewEncryptor(true, "too-short")
	assert.Error(t, err)
}
