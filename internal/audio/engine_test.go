// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"eqplayer/internal/analysis"
	"eqplayer/internal/eq"
	"eqplayer/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
)

// testSink records lifecycle calls and lets the test drive the callback.
type testSink struct {
	mu       sync.Mutex
	format   Format
	cb       Callback
	opens    int
	starts   int
	stops    int
	closes   int
	openErr  error
	startErr error
}

func (s *testSink) Open(f Format, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return deviceError("test", "open", s.openErr)
	}
	s.format = f
	s.cb = cb
	s.opens++
	return nil
}

func (s *testSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return deviceError("test", "start", s.startErr)
	}
	s.starts++
	return nil
}

func (s *testSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *testSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// pull runs one callback of the configured block size.
func (s *testSink) pull() []float32 {
	out := make([]float32, s.format.FramesPerBuffer*s.format.Channels)
	s.cb(out)
	return out
}

func sineTrack(freq, amplitude float64, n int) []float32 {
	return utils.ToFloat32(utils.GenerateSineWave(n, testSampleRate, freq, amplitude))
}

func newTestEngine(t *testing.T) (*Engine, *testSink) {
	t.Helper()
	sink := &testSink{}
	e := NewEngine(EngineConfig{
		FramesPerBuffer: testFrameSize,
		Channels:        2,
		Volume:          1,
	}, sink)
	return e, sink
}

func playing(t *testing.T, samples []float32) (*Engine, *testSink) {
	t.Helper()
	e, sink := newTestEngine(t)
	require.NoError(t, e.Load(samples, testSampleRate))
	require.NoError(t, e.Play())
	return e, sink
}

func rms32(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestEngine_PlayWithoutTrack(t *testing.T) {
	e, sink := newTestEngine(t)

	assert.ErrorIs(t, e.Play(), ErrNoTrack)
	assert.ErrorIs(t, e.SetPosition(10), ErrNoTrack)
	assert.Equal(t, Idle, e.State())
	assert.Zero(t, sink.opens)
}

func TestEngine_LoadInvalidSampleRate(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Load(make([]float32, 100), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, eq.ErrInvalidConfig)
	assert.Equal(t, Idle, e.State())
	assert.Nil(t, e.Track())
}

func TestEngine_LoadFrequencyAboveNyquist(t *testing.T) {
	e := NewEngine(EngineConfig{
		FramesPerBuffer: testFrameSize,
		Channels:        2,
		Frequencies:     []float64{100, 1000, 30000},
	}, &testSink{})

	err := e.Load(make([]float32, 100), testSampleRate)
	assert.ErrorIs(t, err, eq.ErrInvalidConfig)
	assert.Equal(t, Idle, e.State())
}

func TestEngine_StateMachine(t *testing.T) {
	e, sink := newTestEngine(t)
	require.NoError(t, e.Load(sineTrack(440, 0.5, testSampleRate), testSampleRate))
	assert.Equal(t, Loaded, e.State())

	assert.ErrorIs(t, e.Pause(), ErrInvalidState)
	assert.ErrorIs(t, e.Resume(), ErrInvalidState)

	require.NoError(t, e.Play())
	assert.Equal(t, Playing, e.State())
	assert.Equal(t, 1, sink.opens)
	assert.Equal(t, 1, sink.starts)
	assert.Equal(t, Format{SampleRate: testSampleRate, Channels: 2, FramesPerBuffer: testFrameSize}, sink.format)

	// Play while playing is a no-op.
	require.NoError(t, e.Play())
	assert.Equal(t, 1, sink.starts)

	sink.pull()
	require.NoError(t, e.Pause())
	assert.Equal(t, Paused, e.State())
	assert.Equal(t, 1, sink.stops)
	assert.Equal(t, int64(testFrameSize), e.Cursor())

	require.NoError(t, e.Resume())
	assert.Equal(t, Playing, e.State())
	assert.Equal(t, 2, sink.starts)
	assert.Equal(t, 1, sink.opens, "the device stays open across pause")

	require.NoError(t, e.Stop())
	assert.Equal(t, Idle, e.State())
	assert.Zero(t, e.Cursor())

	require.NoError(t, e.Close())
	assert.Equal(t, 1, sink.closes)
}

func TestEngine_RenderSilenceWhenNotPlaying(t *testing.T) {
	e, sink := playing(t, sineTrack(440, 0.5, testSampleRate))
	require.NoError(t, e.Pause())

	out := make([]float32, testFrameSize*2)
	for i := range out {
		out[i] = 1
	}
	sink.cb(out)

	for i, v := range out {
		require.Zero(t, v, "sample %d", i)
	}
	assert.Zero(t, e.Cursor())
}

func TestEngine_RenderDuplicatesMono(t *testing.T) {
	_, sink := playing(t, sineTrack(440, 0.5, testSampleRate))

	out := sink.pull()
	for i := 0; i < len(out); i += 2 {
		require.Equal(t, out[i], out[i+1], "frame %d", i/2)
	}
	assert.Greater(t, rms32(out), 0.0)
}

func TestEngine_EndOfTrack(t *testing.T) {
	samples := sineTrack(440, 0.5, testFrameSize+testFrameSize/2)
	e, sink := playing(t, samples)

	sink.pull()
	out := sink.pull()
	assert.Equal(t, int64(len(samples)), e.Cursor())
	assert.Equal(t, Playing, e.State())
	for i := testFrameSize / 2 * 2; i < len(out); i++ {
		require.Zero(t, out[i], "padding sample %d", i)
	}

	out = sink.pull()
	assert.Zero(t, rms32(out))
	assert.Equal(t, Idle, e.State())
	select {
	case <-e.Ended():
	default:
		t.Fatal("expected an end notification")
	}

	// Playing again from Idle at the end starts over.
	require.NoError(t, e.Play())
	assert.Zero(t, e.Cursor())
}

func TestEngine_SetPosition(t *testing.T) {
	e, sink := playing(t, sineTrack(440, 0.5, testSampleRate))
	assert.Equal(t, int64(1000), e.Duration())

	require.NoError(t, e.SetPosition(500))
	assert.Equal(t, int64(testSampleRate/2), e.Cursor())
	assert.Equal(t, int64(500), e.Position())

	require.NoError(t, e.SetPosition(-20))
	assert.Zero(t, e.Cursor())

	require.NoError(t, e.SetPosition(5000))
	assert.Equal(t, int64(testSampleRate), e.Cursor())

	out := sink.pull()
	assert.Zero(t, rms32(out))
	assert.Equal(t, Idle, e.State())
	select {
	case <-e.Ended():
	default:
		t.Fatal("expected an end notification after seeking past the end")
	}
}

func TestEngine_SeekWinsOverAdvance(t *testing.T) {
	e, sink := playing(t, sineTrack(440, 0.5, testSampleRate))
	sink.pull()
	require.Equal(t, int64(testFrameSize), e.Cursor())

	target := int64(testSampleRate / 4)
	seek := true
	cancel := e.Subscribe(analysis.ProcessorFunc(func([]float64) {
		if seek {
			seek = false
			require.NoError(t, e.SetPosition(250))
		}
	}))
	defer cancel()

	sink.pull()
	assert.Equal(t, target, e.Cursor(), "the seek issued during the block must not be overwritten")

	sink.pull()
	assert.Equal(t, target+testFrameSize, e.Cursor())
}

func TestEngine_Volume(t *testing.T) {
	samples := sineTrack(1000, 0.25, testSampleRate)
	_, fullSink := playing(t, samples)
	half, halfSink := playing(t, samples)
	half.SetVolume(0.5)
	assert.Equal(t, 0.5, half.Volume())

	for range 4 {
		a := fullSink.pull()
		b := halfSink.pull()
		for i := range a {
			require.InDelta(t, a[i]*0.5, b[i], 1e-7)
		}
	}
	half.SetVolume(3)
	assert.Equal(t, 1.0, half.Volume())
	half.SetVolume(-1)
	assert.Equal(t, 0.0, half.Volume())
	half.SetVolume(math.NaN())
	assert.Equal(t, 0.0, half.Volume())
}

func TestEngine_UniformGainScalesOutput(t *testing.T) {
	samples := sineTrack(1000, 0.25, testSampleRate)
	_, flatSink := playing(t, samples)
	cut, cutSink := playing(t, samples)
	for i := range cut.Bank().Len() {
		cut.SetGain(i, -12)
	}

	var a, b []float32
	for range 20 {
		a = append(a, flatSink.pull()...)
		b = append(b, cutSink.pull()...)
	}
	ratio := rms32(b) / rms32(a)
	assert.InDelta(t, math.Pow(10, -12.0/20), ratio, 1e-4)
	assert.Equal(t, -12.0, cut.Gains()[0])
}

func TestEngine_ObserverReceivesUnpaddedBlock(t *testing.T) {
	samples := sineTrack(440, 0.5, testFrameSize+100)
	e, sink := playing(t, samples)

	var sizes []int
	cancel := e.Subscribe(analysis.ProcessorFunc(func(block []float64) {
		sizes = append(sizes, len(block))
	}))

	sink.pull()
	sink.pull()
	sink.pull()
	assert.Equal(t, []int{testFrameSize, 100}, sizes)

	cancel()
	require.NoError(t, e.Play())
	sink.pull()
	assert.Len(t, sizes, 2, "cancelled observer must not be called")
}

func TestEngine_ObserverSeesVolumeScaledBlock(t *testing.T) {
	e, sink := playing(t, sineTrack(1000, 0.25, testSampleRate))
	e.SetVolume(0.5)

	var meter analysis.Meter
	cancel := e.Subscribe(&meter)
	defer cancel()

	out := sink.pull()
	rms, peak := meter.Level()
	assert.InDelta(t, rms32(out), rms, 1e-6)
	assert.LessOrEqual(t, peak, 0.5)
}

func TestEngine_LoadResetsObservers(t *testing.T) {
	e, sink := playing(t, sineTrack(1000, 0.25, testSampleRate))
	var meter analysis.Meter
	cancel := e.Subscribe(&meter)
	defer cancel()

	sink.pull()
	rms, _ := meter.Level()
	require.Greater(t, rms, 0.0)

	require.NoError(t, e.Load(sineTrack(500, 0.1, testSampleRate), testSampleRate))
	rms, peak := meter.Level()
	assert.Zero(t, rms)
	assert.Zero(t, peak)
	assert.Equal(t, Loaded, e.State())
	assert.Zero(t, e.Cursor())
	assert.Equal(t, 1, sink.stops, "load stops a running device")
}

func TestEngine_LoadReopensOnRateChange(t *testing.T) {
	e, sink := playing(t, sineTrack(1000, 0.25, testSampleRate))

	require.NoError(t, e.Load(make([]float32, 48000), 48000))
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, 48000.0, e.Bank().SampleRate())

	require.NoError(t, e.Play())
	assert.Equal(t, 2, sink.opens)
	assert.Equal(t, 48000, sink.format.SampleRate)

	// Same rate keeps the device.
	require.NoError(t, e.Load(make([]float32, 48000), 48000))
	assert.Equal(t, 1, sink.closes)
}

func TestEngine_DeviceFailure(t *testing.T) {
	e, sink := newTestEngine(t)
	sink.openErr = errors.New("device busy")
	require.NoError(t, e.Load(sineTrack(440, 0.5, 1000), testSampleRate))

	err := e.Play()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, Idle, e.State())

	sink.openErr = nil
	sink.startErr = errors.New("underrun")
	err = e.Play()
	assert.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, Idle, e.State())

	sink.startErr = nil
	require.NoError(t, e.Play())
	assert.Equal(t, Playing, e.State())
}

func TestEngine_StopDrainsEnded(t *testing.T) {
	e, sink := playing(t, sineTrack(440, 0.5, 10))
	sink.pull()
	sink.pull()
	require.Equal(t, Idle, e.State())

	require.NoError(t, e.Stop())
	select {
	case <-e.Ended():
		t.Fatal("stop must discard a pending end notification")
	default:
	}
	assert.Zero(t, e.Cursor())
}

func TestEngine_NumericalFaultPassesThrough(t *testing.T) {
	samples := sineTrack(440, 0.5, testSampleRate)
	samples[10] = float32(math.Inf(1))
	e, sink := playing(t, samples)

	out := sink.pull()
	assert.Equal(t, uint64(1), e.Faults())
	assert.Equal(t, samples[0], out[0])
	assert.Equal(t, samples[5], out[10])
}

func TestEngine_RenderNoAllocs(t *testing.T) {
	e, sink := playing(t, sineTrack(440, 0.5, testSampleRate*10))
	var meter analysis.Meter
	cancel := e.Subscribe(&meter)
	defer cancel()

	out := make([]float32, testFrameSize*2)
	sink.cb(out)

	allocs := testing.AllocsPerRun(100, func() {
		sink.cb(out)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in render, got %.1f", allocs)
	}
}

func TestEngine_PartialBlocksNoAllocs(t *testing.T) {
	const length = testFrameSize*8 + 100
	e, sink := playing(t, sineTrack(440, 0.5, length))

	// Added while running, so only the next Load prepares it.
	spectrum := analysis.NewSpectrum(analysis.DefaultSpectrumConfig())
	cancel := e.Subscribe(spectrum)
	defer cancel()
	require.NoError(t, e.Load(sineTrack(440, 0.5, length), testSampleRate))
	require.NoError(t, e.Play())

	out := make([]float32, testFrameSize*2)
	tail := 1
	allocs := testing.AllocsPerRun(50, func() {
		// Each seek leaves a different partial block before the end.
		e.cursor.Store(int64(length - tail))
		sink.cb(out)
		tail = tail%(testFrameSize-1) + 7
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations on partial blocks, got %.1f", allocs)
	}
	assert.Equal(t, Playing, e.State())
}

// energy plays samples to the end and returns the sum of squares of the
// left channel.
func energy(t *testing.T, e *Engine, sink *testSink) float64 {
	t.Helper()
	var sum float64
	for e.State() == Playing {
		out := sink.pull()
		for i := 0; i < len(out); i += 2 {
			sum += float64(out[i]) * float64(out[i])
		}
	}
	return sum
}

func TestEngine_FlatAndCutEnergyAt440Hz(t *testing.T) {
	samples := sineTrack(440, 0.5, testSampleRate)
	var in float64
	for _, v := range samples {
		in += float64(v) * float64(v)
	}

	flat, flatSink := playing(t, samples)
	flatEnergy := energy(t, flat, flatSink)

	// Overlapping bands lift 440 Hz by about 3.7 dB at flat gains.
	h := flat.Bank().Response(440)
	assert.InDelta(t, h*h, flatEnergy/in, 0.02*h*h)
	assert.InDelta(t, 2.33, flatEnergy/in, 0.05)

	cut, cutSink := playing(t, samples)
	for i := range cut.Bank().Len() {
		cut.SetGain(i, -12)
	}
	cutEnergy := energy(t, cut, cutSink)
	assert.InDelta(t, math.Pow(10, -12.0/20), math.Sqrt(cutEnergy/flatEnergy), 1e-3)
}

func TestEngine_OfflineEndToEnd(t *testing.T) {
	var (
		mu     sync.Mutex
		blocks int
	)
	sink := NewOfflineSink(func([]float32) {
		mu.Lock()
		blocks++
		mu.Unlock()
	})
	e := NewEngine(EngineConfig{FramesPerBuffer: testFrameSize, Channels: 2, Volume: 1}, sink)

	var meter analysis.Meter
	e.Subscribe(&meter)

	samples := sineTrack(1000, 0.25, testSampleRate/2)
	require.NoError(t, e.Load(samples, testSampleRate))
	require.NoError(t, e.Play())

	select {
	case <-e.Ended():
	case <-time.After(10 * time.Second):
		t.Fatal("offline playback did not finish")
	}

	require.NoError(t, e.Stop())
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, testSampleRate, sink.Format().SampleRate)

	mu.Lock()
	assert.GreaterOrEqual(t, blocks, (len(samples)+testFrameSize-1)/testFrameSize)
	mu.Unlock()

	require.NoError(t, e.Close())
}

func BenchmarkEngineRender(b *testing.B) {
	sink := &testSink{}
	e := NewEngine(EngineConfig{FramesPerBuffer: testFrameSize, Channels: 2, Volume: 1}, sink)
	if err := e.Load(sineTrack(440, 0.5, testSampleRate*60), testSampleRate); err != nil {
		b.Fatal(err)
	}
	if err := e.Play(); err != nil {
		b.Fatal(err)
	}
	out := make([]float32, testFrameSize*2)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if e.Cursor() >= int64(testSampleRate*59) {
			_ = e.SetPosition(0)
		}
		sink.cb(out)
	}
}
