package testutils

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger

	logs *syncBuffer
}

// NewTestHelper creates a test helper whose logger captures output at debug level.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &syncBuffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return &TestHelper{
		T:      t,
		Logger: logger,
		logs:   logs,
	}
}

// Logs returns everything logged so far
func (h *TestHelper) Logs() string {
	return h.logs.String()
}

// LogContains reports whether any log line contains every given fragment
func (h *TestHelper) LogContains(fragments ...string) bool {
	for _, line := range strings.Split(h.Logs(), "\n") {
		matched := true
		for _, f := range fragments {
			if !strings.Contains(line, f) {
				matched = false
				break
			}
		}
		if matched && line != "" {
			return true
		}
	}
	return false
}

// Eventually polls cond until it holds or timeout elapses
func (h *TestHelper) Eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
