// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"eqplayer/internal/audio"
	"eqplayer/internal/eq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine records calls and follows the audio.Engine state rules closely
// enough for sequencing tests.
type fakeEngine struct {
	mu       sync.Mutex
	state    audio.State
	loaded   []int // sample counts, one per Load
	plays    int
	position int64
	volume   float64
	gains    []float64
	preset   string
	faults   uint64
	ended    chan struct{}
	playErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{ended: make(chan struct{}, 1), gains: make([]float64, 8)}
}

func (f *fakeEngine) Load(samples []float32, rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, len(samples))
	f.position = 0
	f.state = audio.Loaded
	return nil
}

func (f *fakeEngine) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays++
	f.state = audio.Playing
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != audio.Playing {
		return audio.ErrInvalidState
	}
	f.state = audio.Paused
	return nil
}

func (f *fakeEngine) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != audio.Paused {
		return audio.ErrInvalidState
	}
	f.state = audio.Playing
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = audio.Idle
	f.position = 0
	return nil
}

func (f *fakeEngine) SetPosition(ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = ms
	return nil
}

func (f *fakeEngine) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeEngine) Duration() int64 { return 3000 }

func (f *fakeEngine) SetVolume(g float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = min(max(g, 0), 1)
}

func (f *fakeEngine) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeEngine) SetGain(i int, db float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= 0 && i < len(f.gains) {
		f.gains[i] = db
	}
}

func (f *fakeEngine) Gains() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.gains...)
}

func (f *fakeEngine) ApplyPreset(name string) error {
	gains, err := eq.Preset(name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preset = name
	copy(f.gains, gains)
	return nil
}

func (f *fakeEngine) State() audio.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) Ended() <-chan struct{} { return f.ended }

func (f *fakeEngine) Faults() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *fakeEngine) finish() {
	f.mu.Lock()
	f.state = audio.Idle
	f.mu.Unlock()
	f.ended <- struct{}{}
}

// fakeLoader returns a buffer whose length encodes the track index, so
// tests can tell from Engine.Load which file was decoded.
type fakeLoader struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]error
}

func (l *fakeLoader) Load(path string) ([]float32, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail[path]; err != nil {
		return nil, 0, err
	}
	l.paths = append(l.paths, path)
	return make([]float32, 100+len(l.paths)), 44100, nil
}

func (l *fakeLoader) loadedPaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func newTestController(t *testing.T, n int) (*Controller, *fakeEngine, *fakeLoader) {
	t.Helper()
	e := newFakeEngine()
	l := &fakeLoader{}
	c := New(e, l, WithRandSource(rand.NewPCG(7, 8)))
	if n > 0 {
		require.NoError(t, c.Open(tracks(n)))
	}
	return c, e, l
}

func TestController_OpenEmpty(t *testing.T) {
	c, _, _ := newTestController(t, 0)
	assert.ErrorIs(t, c.Open(nil), ErrEmptyPlaylist)
	assert.ErrorIs(t, c.Play(), ErrEmptyPlaylist)
	assert.ErrorIs(t, c.Next(), ErrEmptyPlaylist)
	assert.ErrorIs(t, c.Previous(), ErrEmptyPlaylist)
}

func TestController_PlayStartsPlaylist(t *testing.T) {
	c, e, l := newTestController(t, 3)

	require.NoError(t, c.Play())
	assert.Equal(t, []string{"a.wav"}, l.loadedPaths())
	assert.Equal(t, audio.Playing, e.State())

	s := c.Status()
	assert.Equal(t, "playing", s.State)
	assert.Equal(t, "a.wav", s.Track)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 3, s.Tracks)
	assert.Equal(t, int64(3000), s.Duration)
}

func TestController_NextPreviousLoadTracks(t *testing.T) {
	c, _, l := newTestController(t, 3)

	require.NoError(t, c.Next())
	require.NoError(t, c.Next())
	require.NoError(t, c.Previous())
	require.NoError(t, c.PlayIndex(2))

	assert.Equal(t, []string{"a.wav", "b.wav", "a.wav", "c.wav"}, l.loadedPaths())
	assert.Error(t, c.PlayIndex(9))
}

func TestController_RepeatRestartsOnNext(t *testing.T) {
	c, e, l := newTestController(t, 3)
	require.NoError(t, c.PlayIndex(1))
	require.NoError(t, c.Seek(1500))

	c.SetRepeat(true)
	require.NoError(t, c.Next())

	assert.Equal(t, []string{"b.wav"}, l.loadedPaths(), "repeat must not load another file")
	assert.Zero(t, e.Position())
	assert.Equal(t, 2, e.plays)
}

func TestController_SingleTrackWrapRestarts(t *testing.T) {
	c, e, l := newTestController(t, 1)
	require.NoError(t, c.Play())
	require.NoError(t, c.Next())

	assert.Len(t, l.loadedPaths(), 1)
	assert.Equal(t, 2, e.plays)
}

func TestController_Toggle(t *testing.T) {
	c, e, _ := newTestController(t, 2)

	require.NoError(t, c.Toggle())
	assert.Equal(t, audio.Playing, e.State())
	require.NoError(t, c.Toggle())
	assert.Equal(t, audio.Paused, e.State())
	require.NoError(t, c.Toggle())
	assert.Equal(t, audio.Playing, e.State())

	require.NoError(t, c.Stop())
	assert.Equal(t, audio.Idle, e.State())
	assert.ErrorIs(t, c.Pause(), audio.ErrInvalidState)
}

func TestController_LoadFailure(t *testing.T) {
	c, e, l := newTestController(t, 2)
	boom := errors.New("corrupt")
	l.fail = map[string]error{"a.wav": boom}

	err := c.Play()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, audio.Idle, e.State())

	e.playErr = audio.ErrDevice
	assert.ErrorIs(t, c.Next(), audio.ErrDevice)
}

func TestController_VolumeGainPreset(t *testing.T) {
	c, e, _ := newTestController(t, 1)

	c.SetVolume(0.25)
	assert.Equal(t, 0.25, e.Volume())

	c.SetGain(3, -6)
	assert.Equal(t, -6.0, c.Status().Gains[3])

	require.NoError(t, c.ApplyPreset("rock"))
	assert.Equal(t, "rock", e.preset)
	assert.ErrorIs(t, c.ApplyPreset("polka"), eq.ErrUnknownPreset)
}

func TestController_Run(t *testing.T) {
	c, e, l := newTestController(t, 3)
	require.NoError(t, c.Play())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	e.finish()
	require.Eventually(t, func() bool { return len(l.loadedPaths()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "b.wav", l.loadedPaths()[1])

	c.SetRepeat(true)
	e.finish()
	require.Eventually(t, func() bool { return e.State() == audio.Playing }, time.Second, 5*time.Millisecond)
	assert.Len(t, l.loadedPaths(), 2, "repeat replays without reloading")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestController_LoadHook(t *testing.T) {
	var hooked []string
	e := newFakeEngine()
	c := New(e, &fakeLoader{}, WithLoadHook(func(path string) { hooked = append(hooked, path) }))
	require.NoError(t, c.Open([]string{"/music/x.wav"}))
	require.NoError(t, c.Play())
	assert.Equal(t, []string{"/music/x.wav"}, hooked)
	assert.Equal(t, "x.wav", c.Status().Track)
}

func TestController_Dispatch(t *testing.T) {
	c, e, l := newTestController(t, 3)

	tests := []struct {
		cmd   Command
		check func(t *testing.T)
	}{
		{Command{Action: "play"}, func(t *testing.T) { assert.Equal(t, audio.Playing, e.State()) }},
		{Command{Action: "PAUSE"}, func(t *testing.T) { assert.Equal(t, audio.Paused, e.State()) }},
		{Command{Action: "resume"}, func(t *testing.T) { assert.Equal(t, audio.Playing, e.State()) }},
		{Command{Action: "seek", Ms: 1200}, func(t *testing.T) { assert.Equal(t, int64(1200), e.Position()) }},
		{Command{Action: "volume", Value: 0.4}, func(t *testing.T) { assert.Equal(t, 0.4, e.Volume()) }},
		{Command{Action: "gain", Band: 1, Value: 4}, func(t *testing.T) { assert.Equal(t, 4.0, e.Gains()[1]) }},
		{Command{Action: "preset", Preset: "Jazz"}, func(t *testing.T) { assert.Equal(t, "Jazz", e.preset) }},
		{Command{Action: "select", Index: 2}, func(t *testing.T) { assert.Equal(t, "c.wav", l.loadedPaths()[1]) }},
		{Command{Action: "prev"}, func(t *testing.T) { assert.Equal(t, "b.wav", l.loadedPaths()[2]) }},
		{Command{Action: "shuffle", Enabled: true}, func(t *testing.T) { assert.True(t, c.Status().Shuffle) }},
		{Command{Action: "repeat", Enabled: true}, func(t *testing.T) { assert.True(t, c.Status().Repeat) }},
		{Command{Action: "stop"}, func(t *testing.T) { assert.Equal(t, audio.Idle, e.State()) }},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Action, func(t *testing.T) {
			require.NoError(t, c.Dispatch(tt.cmd))
			tt.check(t)
		})
	}

	assert.ErrorIs(t, c.Dispatch(Command{Action: "rewind"}), ErrUnknownCommand)
}
