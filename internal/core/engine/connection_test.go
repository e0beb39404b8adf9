package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

func TestConn_EnqueueBoundedQueue(t *testing.T) {
	lg := log.New(log.LevelError)
	c := newConn(nil, 2, lg)

	assert.NoError(t, c.enqueue("one"))
	assert.NoError(t, c.enqueue("two"))
	assert.ErrorIs(t, c.enqueue("three"), ErrQueueFull)
}

func TestConn_IdleTracking(t *testing.T) {
	lg := log.New(log.LevelError)
	c := newConn(nil, 1, lg)

	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, c.idleFor(), time.Duration(0))

	before := c.idleFor()
	c.touch()
	assert.Less(t, c.idleFor(), before)
}
