package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingChannel(t *testing.T) {
	t.Run("overwrites oldest when full", func(t *testing.T) {
		rc := New[int](3)
		for i := 0; i < 5; i++ {
			assert.True(t, rc.Send(i))
		}

		assert.Equal(t, 3, rc.Len())
		assert.Equal(t, int64(2), rc.Overwritten())

		var got []int
		for {
			v, ok := rc.TryReceive()
			if !ok {
				break
			}
			got = append(got, v)
		}
		assert.Equal(t, []int{2, 3, 4}, got, "MUST keep the newest values in order")
	})

	t.Run("send after close is dropped", func(t *testing.T) {
		rc := New[string](1)
		rc.Close()
		rc.Close()

		assert.False(t, rc.Send("late"))
		_, ok := <-rc.C()
		assert.False(t, ok, "channel MUST be closed")
	})

	t.Run("concurrent senders never block", func(t *testing.T) {
		rc := New[int](2)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					rc.Send(v)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 2, rc.Len())
		assert.Equal(t, int64(798), rc.Overwritten())
	})

	t.Run("panics on non-positive capacity", func(t *testing.T) {
		assert.Panics(t, func() { New[int](0) })
	})
}
