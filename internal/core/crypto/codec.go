// Package crypto implements the authenticated-encryption layer of the
// engine: an AES-256-GCM codec with a timestamp embedded inside the
// sealed payload, and a sliding-window replay guard keyed on the
// (nonce, timestamp) pair.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	// KeySize is the only accepted key length, in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length, in bytes.
	NonceSize = 12

	timestampSize = 8
)

// Envelope is the result of opening a ciphertext blob.
type Envelope struct {
	Plaintext []byte
	Timestamp time.Time
	Nonce     [NonceSize]byte
}

// Codec seals and opens message payloads with a fixed 32-byte key.
// A Codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec for the given key. The key must be exactly
// 32 bytes; any other length is rejected with ErrInvalidKeyLength.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext and returns the wire blob
//
//	nonce (12B, random) || GCM(timestamp_millis (8B, big-endian) || plaintext)
//
// The timestamp sits inside the authenticated payload so the replay
// check cannot be defeated by tampering with it. A fresh random nonce
// is drawn from crypto/rand on every call.
func (c *Codec) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	payload := make([]byte, timestampSize+len(plaintext))
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixMilli()))
	copy(payload[timestampSize:], plaintext)

	return c.aead.Seal(nonce, nonce, payload, nil), nil
}

// Open authenticates and decrypts a wire blob produced by Seal. A failed
// tag check (wrong key, corrupted data) yields ErrAuthenticationFailed.
func (c *Codec) Open(blob []byte) (Envelope, error) {
	if len(blob) < NonceSize+timestampSize+c.aead.Overhead() {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(blob))
	}

	var env Envelope
	copy(env.Nonce[:], blob[:NonceSize])

	payload, err := c.aead.Open(nil, env.Nonce[:], blob[NonceSize:], nil)
	if err != nil {
		return Envelope{}, ErrAuthenticationFailed
	}
	if len(payload) < timestampSize {
		return Envelope{}, ErrInvalidCiphertext
	}

	env.Timestamp = time.UnixMilli(int64(binary.BigEndian.Uint64(payload)))
	env.Plaintext = payload[timestampSize:]
	return env, nil
}

// SealText seals a text message and Base64-encodes the blob. This is the
// on-wire form for encrypted WebSocket text frames and the manual
// encrypt entry point.
func (c *Codec) SealText(plaintext string) (string, error) {
	blob, err := c.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenText decodes a Base64 blob and opens it.
func (c *Codec) OpenText(encoded string) (Envelope, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return c.Open(blob)
}
