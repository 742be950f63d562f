package models

const (
	KeySize    = 32     // AES-256
	NonceSize  = 12     // GCM standard nonce size
	Iterations = 100000 // PBKDF2 iterations

	// MinSecretLength is the shortest accepted payload encryption secret.
	MinSecretLength = 32
)
