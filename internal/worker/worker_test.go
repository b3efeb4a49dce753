package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"elasticrag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOpener struct {
	calls atomic.Int32
}

func (f *failingOpener) Open(ctx context.Context, username, collection, modelID string, forceRecreate bool) (*usecase.Collection, error) {
	f.calls.Add(1)
	return nil, errors.New("store unavailable")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextBackoff(t *testing.T) {
	w := NewIngestWorker(&failingOpener{}, discardLogger())

	assert.Equal(t, initialBackoff, w.nextBackoff(0))
	assert.Equal(t, 2*time.Second, w.nextBackoff(1*time.Second))
	assert.Equal(t, 4*time.Second, w.nextBackoff(2*time.Second))
	assert.Equal(t, maxBackoff, w.nextBackoff(4*time.Minute))
	assert.Equal(t, maxBackoff, w.nextBackoff(maxBackoff))
}

func TestEnqueue_FullQueue(t *testing.T) {
	w := NewIngestWorker(&failingOpener{}, discardLogger())

	for i := 0; i < queueCapacity; i++ {
		require.True(t, w.Enqueue(IngestJob{ID: "job"}))
	}
	assert.Equal(t, queueCapacity, w.QueueDepth())
	assert.False(t, w.Enqueue(IngestJob{ID: "overflow"}), "a full queue must refuse, not block")
}

func TestProcess_FailureGrowsBackoff(t *testing.T) {
	opener := &failingOpener{}
	w := NewIngestWorker(opener, discardLogger())

	w.process(IngestJob{ID: "one", Username: "alice", Collection: "docs"})
	assert.Equal(t, initialBackoff, w.backoff)

	w.process(IngestJob{ID: "two", Username: "alice", Collection: "docs"})
	assert.Equal(t, 2*initialBackoff, w.backoff)
	assert.Equal(t, int32(2), opener.calls.Load())
}

func TestStartStop(t *testing.T) {
	opener := &failingOpener{}
	w := NewIngestWorker(opener, discardLogger())
	w.Start()

	require.True(t, w.Enqueue(IngestJob{ID: "one", Username: "alice", Collection: "docs"}))
	assert.Eventually(t, func() bool {
		return opener.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
