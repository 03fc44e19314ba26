package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter(t *testing.T) {
	t.Run("prints phase and clears on stop", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProgressPrinter(&buf, "Connecting to AA", "connecting", 0)

		p.Start()
		p.Stop()
		p.Stop()

		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "\rConnecting to AA (connecting...)"))
		assert.True(t, strings.HasSuffix(out, clearLineSequence))
		assert.Equal(t, 1, strings.Count(out, clearLineSequence), "Stop MUST clear the line once")
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		var buf bytes.Buffer
		NewProgressPrinter(&buf, "x", "y", 0).Stop()
		assert.Empty(t, buf.String())
	})

	t.Run("countdown rounds remaining seconds", func(t *testing.T) {
		p := NewProgressPrinter(&bytes.Buffer{}, "Scanning", "scanning", 10*time.Second)
		p.started = time.Now().Add(-2300 * time.Millisecond)
		assert.Equal(t, 8, p.seconds())

		p.started = time.Now().Add(-time.Minute)
		assert.Equal(t, 0, p.seconds(), "expired countdown MUST show 0")
	})
}
