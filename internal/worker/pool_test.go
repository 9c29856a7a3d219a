package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("ShouldRunAllSubmittedJobs", func(t *testing.T) {
		p := Start(context.Background(), Config{Workers: 3, QueueSize: 2})
		var n atomic.Int32
		for i := 0; i < 20; i++ {
			require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
				n.Add(1)
				return nil
			}))
		}
		require.NoError(t, p.Close())
		assert.Equal(t, int32(20), n.Load())
	})
	t.Run("ShouldKeepRunningAfterJobError", func(t *testing.T) {
		p := Start(context.Background(), Config{Workers: 1})
		var ran atomic.Bool
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return errors.New("boom") }))
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			ran.Store(true)
			return nil
		}))
		require.NoError(t, p.Close())
		assert.True(t, ran.Load())
	})
	t.Run("ShouldBlockWhenQueueIsFullUntilContextDone", func(t *testing.T) {
		p := Start(context.Background(), Config{Workers: 1, QueueSize: 1})
		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		}))
		<-started
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Submit(ctx, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		require.NoError(t, p.Close())
	})
	t.Run("ShouldRejectAfterClose", func(t *testing.T) {
		p := Start(context.Background(), Config{})
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())
		assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) error { return nil }), ErrClosed)
	})
}
