package crypto

import "errors"

// Codec and replay-guard errors
var (
	ErrInvalidKeyLength     = errors.New("encryption key must be exactly 32 bytes")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
	ErrInvalidCiphertext    = errors.New("ciphertext is malformed")

	ErrStaleTimestamp   = errors.New("message timestamp outside replay window")
	ErrDuplicateMessage = errors.New("message already seen within replay window")
)
