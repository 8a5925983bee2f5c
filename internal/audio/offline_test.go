// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineSink_Lifecycle(t *testing.T) {
	var calls, writes atomic.Int64
	s := NewOfflineSink(func(block []float32) {
		writes.Add(1)
		if len(block) != 8 {
			t.Errorf("block length %d, want 8", len(block))
		}
	})

	assert.ErrorIs(t, s.Start(), ErrDevice, "start before open")
	assert.ErrorIs(t, s.Open(Format{SampleRate: 8000, Channels: 2}, nil), ErrDevice)

	f := Format{SampleRate: 8000, Channels: 2, FramesPerBuffer: 4}
	require.NoError(t, s.Open(f, func(out []float32) { calls.Add(1) }))
	assert.Equal(t, f, s.Format())
	assert.ErrorIs(t, s.Open(f, nil), ErrDevice, "double open")

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "start while running is a no-op")
	require.Eventually(t, func() bool { return calls.Load() > 10 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	stopped := calls.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no callback may run after Stop returns")
	assert.Equal(t, stopped, writes.Load())

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return calls.Load() > stopped }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Stop())
}
