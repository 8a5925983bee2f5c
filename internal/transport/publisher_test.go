// SPDX-License-Identifier: MIT
package transport

import (
	"testing"
	"time"

	"eqplayer/internal/analysis"
	"eqplayer/internal/control"
	"eqplayer/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBars struct {
	bars, peaks []float64
}

func (s staticBars) Bars(dst []float64) []float64  { return append(dst[:0], s.bars...) }
func (s staticBars) Peaks(dst []float64) []float64 { return append(dst[:0], s.peaks...) }

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(nil, time.Millisecond, staticBars{}, nil, nil)
	assert.Error(t, err)
	_, err = NewPublisher(&utils.MockTransport{}, time.Millisecond, nil, nil, nil)
	assert.Error(t, err)

	p, err := NewPublisher(&utils.MockTransport{}, 0, staticBars{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestPublisher_Frame(t *testing.T) {
	mt := &utils.MockTransport{}
	var meter analysis.Meter
	meter.Process([]float64{0.5, -0.5})

	status := func() control.Status { return control.Status{State: "playing", Track: "a.wav"} }
	p, err := NewPublisher(mt, time.Hour, staticBars{bars: []float64{1, 2}, peaks: []float64{3, 4}}, &meter, status)
	require.NoError(t, err)

	require.NoError(t, p.Publish())
	require.NoError(t, p.Publish())

	sent := mt.Sent()
	require.Len(t, sent, 2)
	f := sent[1].(Frame)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, []float64{1, 2}, f.Bars)
	assert.Equal(t, []float64{3, 4}, f.Peaks)
	assert.InDelta(t, analysis.Decibels(0.5), f.RMS, 1e-9)
	assert.InDelta(t, analysis.Decibels(0.5), f.Peak, 1e-9)
	require.NotNil(t, f.Status)
	assert.Equal(t, "a.wav", f.Status.Track)

	// Frames own their slices.
	f.Bars[0] = 99
	assert.Equal(t, 1.0, sent[0].(Frame).Bars[0])
}

func TestPublisher_NoLevelSource(t *testing.T) {
	p, err := NewPublisher(&utils.MockTransport{}, time.Hour, staticBars{}, nil, nil)
	require.NoError(t, err)

	f := p.Frame()
	assert.Equal(t, -120.0, f.RMS)
	assert.Nil(t, f.Status)
}

func TestPublisher_StartStop(t *testing.T) {
	mt := &utils.MockTransport{}
	p, err := NewPublisher(mt, 2*time.Millisecond, staticBars{bars: []float64{1}}, nil, nil)
	require.NoError(t, err)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool { return len(mt.Sent()) >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, p.Stop())
	n := len(mt.Sent())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, len(mt.Sent()), "no frames after Stop")

	require.NoError(t, p.Close())
	assert.False(t, mt.Closed(), "the publisher does not own the transport")
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	assert.NoError(t, lt.Send(Frame{Seq: 1}))
	assert.NoError(t, lt.Send(make(chan int)))
	assert.NoError(t, lt.Close())
}
