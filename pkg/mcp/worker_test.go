package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_EnqueueFullQueueFailsNoMemory(t *testing.T) {
	s := NewServer(testConfig())
	pool := newWorkerPool(s, 1, 1, s.logger)
	// No start(): nothing drains the queue, so the first enqueue fills it.

	require.NoError(t, pool.enqueue(QueueMsg{}))

	err := pool.enqueue(QueueMsg{})
	require.Error(t, err)
	assert.Equal(t, KindNoMemory, asError(err).Kind)
}

func TestWorkerPool_StopWithRunningWorkers(t *testing.T) {
	s := NewServer(testConfig())
	pool := newWorkerPool(s, 2, 4, s.logger)
	pool.start()
	pool.stop()
}
