// Package groutine starts pprof-labelled goroutines so BLE callback and monitor
// goroutines can be told apart in profiles and stack dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts fn in a goroutine labelled with name and returns a channel that is
// closed once fn returns. The name is readable from fn's context with
// pprof.Label(ctx, "goroutine_name").
//
//	done := groutine.Go(ctx, "scan-session-3", func(ctx context.Context) {
//	    // work
//	})
//	<-done
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	done := make(chan struct{})
	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})

	return done
}
