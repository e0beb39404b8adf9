package engine

import "errors"

// Engine-specific errors
var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrBindFailed           = errors.New("failed to bind listener")

	ErrAlreadyConnected = errors.New("client is already connected")
	ErrNotConnected     = errors.New("client is not connected")
	ErrConnectFailed    = errors.New("client connect failed")

	ErrMaxClientsReached = errors.New("maximum clients reached")
	ErrClientNotFound    = errors.New("client not found")

	ErrConnectionClosed = errors.New("connection is closed")
	ErrQueueFull        = errors.New("outbound queue is full")

	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrKeyNotConfigured = errors.New("encryption enabled but no key configured")
)
