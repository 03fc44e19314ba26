package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/bluecontrol/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps one status line updated with the current phase and a
// seconds counter. It counts down from a duration, or up when none is given.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Scanning for devices", "scanning", 10*time.Second)
//	p.Start()
//	defer p.Stop()
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration // 0 counts up
	phase    atomic.Value

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      <-chan struct{}
	started   time.Time
}

// NewProgressPrinter creates a progress printer writing to w
func NewProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{w: w, prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins updating the status line. Only the first call has an effect.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		p.started = time.Now()
		p.print(p.seconds())

		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = groutine.Go(ctx, "progress", p.loop)
	})
}

// SetPhase replaces the phase shown on the status line
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop stops updating and clears the status line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			return
		}
		p.cancel()
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}

func (p *ProgressPrinter) loop(ctx context.Context) {
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.print(p.seconds())
		}
	}
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.started)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(seconds int) {
	phase, _ := p.phase.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}
