package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("12345678901234567890123456789012")

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	blob, err := codec.Seal([]byte("Hello World"))
	require.NoError(t, err)

	env, err := codec.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(env.Plaintext))
	assert.WithinDuration(t, time.Now(), env.Timestamp, 5*time.Second)
}

func TestCodec_KeyLength(t *testing.T) {
	_, err := NewCodec([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = NewCodec(append(testKey, 'x'))
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = NewCodec(nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestCodec_WrongKeyFailsAuthentication(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	other, err := NewCodec([]byte("abcdefghijklmnopqrstuvwxyz012345"))
	require.NoError(t, err)

	blob, err := codec.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Open(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCodec_CorruptedBlobFailsAuthentication(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	blob, err := codec.Seal([]byte("secret"))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff
	_, err = codec.Open(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCodec_ShortBlobRejected(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	_, err = codec.Open([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestCodec_FreshNoncePerCall(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	first, err := codec.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := codec.Seal([]byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, first[:NonceSize], second[:NonceSize],
		"two seals must never share a nonce")
	assert.NotEqual(t, first, second)
}

func TestCodec_TextRoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	encoded, err := codec.SealText("Hello World")
	require.NoError(t, err)

	env, err := codec.OpenText(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(env.Plaintext))
}

func TestCodec_TextRejectsInvalidBase64(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	_, err = codec.OpenText("%%% not base64 %%%")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestCodec_EmptyPlaintext(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	blob, err := codec.Seal(nil)
	require.NoError(t, err)

	env, err := codec.Open(blob)
	require.NoError(t, err)
	assert.Empty(t, env.Plaintext)
}
