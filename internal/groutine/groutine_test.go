package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	t.Run("labels the goroutine and signals completion", func(t *testing.T) {
		names := make(chan string, 1)

		done := Go(context.Background(), "worker-42", func(ctx context.Context) {
			name, _ := pprof.Label(ctx, "goroutine_name")
			names <- name
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			require.FailNow(t, "goroutine MUST finish")
		}
		assert.Equal(t, "worker-42", <-names)
	})

	t.Run("nil parent context falls back to background", func(t *testing.T) {
		//nolint:staticcheck // nil context is part of the contract
		done := Go(nil, "nil-parent", func(ctx context.Context) {
			assert.NotNil(t, ctx)
		})
		<-done
	})

	t.Run("cancellation propagates from parent", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := Go(ctx, "waiter", func(ctx context.Context) {
			<-ctx.Done()
		})
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			require.FailNow(t, "goroutine MUST observe parent cancellation")
		}
	})
}
