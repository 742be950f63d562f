package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"sendqueue/internal/constants"
	"sendqueue/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

// encryptedPrefix marks values written by an enabled encryptor, so rows
// stored before encryption was switched on stay readable.
const encryptedPrefix = "enc:v1:"

type encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor returns a pass-through encryptor when enabled is false.
func NewEncryptor(enabled bool, secret string) (*encryptor, error) {
	if !enabled {
		return &encryptor{}, nil
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) Enabled() bool {
	return e.gcm != nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *encryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}
	if e.gcm == nil {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("SENDQUEUE_ENCRYPTION_SECRET is required when payload encryption is enabled")
	}
	if len(secret) < models.MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", models.MinSecretLength)
	}

	salt := []byte(constants.EncryptionSalt)
	return pbkdf2.Key([]byte(secret), salt, models.Iterations, models.KeySize, sha256.New), nil
}
