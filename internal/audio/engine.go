// SPDX-License-Identifier: MIT
/*
Package audio implements the real-time playback engine with:
- Pull-callback output through PortAudio, oto or an offline sink
- A parallel Butterworth equalizer applied per block
- Synchronous observers (spectrum, meter, recorder) fed the processed block
- WAV recording of the processed output off the audio thread

Thread Safety:
- Uses atomic operations for state, cursor, volume and the track pointer
- Pre-allocates buffers to avoid GC in hot path
- Control methods serialize on a mutex the callback never takes
*/
package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"eqplayer/internal/analysis"
	"eqplayer/internal/eq"

	"github.com/tphakala/simd/f64"
)

// State is the playback state machine.
type State int32

const (
	Idle State = iota
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Track is an immutable decoded mono buffer.
type Track struct {
	Samples    []float32
	SampleRate int
}

// Len returns the track length in samples.
func (t *Track) Len() int {
	return len(t.Samples)
}

// EngineConfig holds the fixed stream settings.
type EngineConfig struct {
	FramesPerBuffer int       // frames per callback block
	Channels        int       // output channels; mono is duplicated
	Frequencies     []float64 // equalizer band table
	Volume          float64   // initial volume in [0, 1]
}

type observer struct {
	id uint64
	p  analysis.Processor
}

type Engine struct {
	cfg  EngineConfig
	sink Sink
	bank *eq.Bank

	// Control path. The callback never takes mu.
	mu      sync.Mutex
	opened  bool
	running bool
	format  Format
	nextID  uint64

	// Shared with the callback.
	state     atomic.Int32
	track     atomic.Pointer[Track]
	cursor    atomic.Int64
	volume    atomic.Uint64
	observers atomic.Pointer[[]observer]
	ended     chan struct{}

	// Recording state, separate from mu because Subscribe takes mu.
	recMu     sync.Mutex
	recorder  *Recorder
	cancelRec func()

	// Callback scratch.
	in   []float64
	proc []float64
}

// NewEngine returns an Idle engine that will play through sink. The sink is
// opened lazily on the first Play, once the track's sample rate is known.
func NewEngine(cfg EngineConfig, sink Sink) *Engine {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if len(cfg.Frequencies) == 0 {
		cfg.Frequencies = eq.DefaultFrequencies
	}

	e := &Engine{
		cfg:   cfg,
		sink:  sink,
		bank:  eq.NewBank(),
		ended: make(chan struct{}, 1),
		in:    make([]float64, cfg.FramesPerBuffer),
		proc:  make([]float64, cfg.FramesPerBuffer),
	}
	e.observers.Store(&[]observer{})
	e.SetVolume(cfg.Volume)
	return e
}

// Bank exposes the equalizer for gain and preset control.
func (e *Engine) Bank() *eq.Bank {
	return e.bank
}

// State returns the current playback state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Ended delivers one notification each time playback runs off the end of
// the track. It is buffered by one; notifications are dropped while one is
// pending.
func (e *Engine) Ended() <-chan struct{} {
	return e.ended
}

// Subscribe registers p to receive every processed block synchronously on
// the audio callback. The returned function removes it.
func (e *Engine) Subscribe(p analysis.Processor) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	cur := *e.observers.Load()
	next := make([]observer, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, observer{id: id, p: p})
	e.observers.Store(&next)

	// Preparing while the callback runs would race with it.
	if pr, ok := p.(analysis.Preparer); ok && !e.running {
		pr.Prepare(e.cfg.FramesPerBuffer)
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		cur := *e.observers.Load()
		next := make([]observer, 0, len(cur))
		for _, o := range cur {
			if o.id != id {
				next = append(next, o)
			}
		}
		e.observers.Store(&next)
	}
}

// Load publishes a new track. A running sink is stopped first, the cursor
// and observers are reset, and the equalizer is redesigned when the sample
// rate changed. On a configuration error the engine is left Idle without a
// track.
func (e *Engine) Load(samples []float32, sampleRate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.stopSinkLocked(); err != nil {
		return err
	}
	e.state.Store(int32(Idle))
	e.drainEnded()

	if sampleRate <= 0 {
		e.track.Store(nil)
		return &eq.ConfigError{SampleRate: float64(sampleRate), Reason: "track sample rate must be positive"}
	}

	if !e.bank.Configured() || e.bank.SampleRate() != float64(sampleRate) {
		if err := e.bank.Configure(float64(sampleRate), e.cfg.Frequencies, e.cfg.FramesPerBuffer); err != nil {
			e.track.Store(nil)
			return err
		}
		if e.opened && e.format.SampleRate != sampleRate {
			if err := e.closeSinkLocked(); err != nil {
				e.track.Store(nil)
				return err
			}
		}
	}

	e.track.Store(&Track{Samples: samples, SampleRate: sampleRate})
	e.cursor.Store(0)
	e.bank.Reset()
	// The sink is stopped, so observers added mid-playback can be prepared.
	for _, o := range *e.observers.Load() {
		if pr, ok := o.p.(analysis.Preparer); ok {
			pr.Prepare(e.cfg.FramesPerBuffer)
		}
		if r, ok := o.p.(analysis.Resetter); ok {
			r.Reset()
		}
	}

	e.state.Store(int32(Loaded))
	return nil
}

// Track returns the loaded track or nil.
func (e *Engine) Track() *Track {
	return e.track.Load()
}

// Play starts or restarts output. From Paused it resumes. From Idle with a
// track still loaded it plays again from the cursor, or from the start when
// the previous run reached the end.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.track.Load()
	if t == nil {
		return ErrNoTrack
	}

	switch e.State() {
	case Playing:
		return nil
	case Idle:
		if e.cursor.Load() >= int64(t.Len()) {
			e.cursor.Store(0)
		}
	}

	if err := e.openSinkLocked(t.SampleRate); err != nil {
		e.state.Store(int32(Idle))
		return err
	}

	e.state.Store(int32(Playing))
	if !e.running {
		if err := e.sink.Start(); err != nil {
			e.state.Store(int32(Idle))
			return err
		}
		e.running = true
	}
	return nil
}

// Pause halts the device, keeping the cursor.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != Playing {
		return fmt.Errorf("pause from %s: %w", e.State(), ErrInvalidState)
	}
	if err := e.stopSinkLocked(); err != nil {
		return err
	}
	e.state.Store(int32(Paused))
	return nil
}

// Resume continues from Paused.
func (e *Engine) Resume() error {
	if e.State() != Paused {
		return fmt.Errorf("resume from %s: %w", e.State(), ErrInvalidState)
	}
	return e.Play()
}

// Stop halts the device and rewinds to the start. It returns only after the
// sink guarantees no further callback can run.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.stopSinkLocked(); err != nil {
		return err
	}
	e.state.Store(int32(Idle))
	e.drainEnded()
	e.cursor.Store(0)
	e.bank.Reset()
	return nil
}

// drainEnded discards an end notification left over from the previous run.
func (e *Engine) drainEnded() {
	select {
	case <-e.ended:
	default:
	}
}

// Close stops playback, finalizes any recording and releases the device.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.stopSinkLocked(); err != nil {
		return err
	}
	e.state.Store(int32(Idle))
	return e.closeSinkLocked()
}

func (e *Engine) openSinkLocked(sampleRate int) error {
	if e.opened {
		return nil
	}
	f := Format{
		SampleRate:      sampleRate,
		Channels:        e.cfg.Channels,
		FramesPerBuffer: e.cfg.FramesPerBuffer,
	}
	if err := e.sink.Open(f, e.render); err != nil {
		return err
	}
	e.format = f
	e.opened = true
	return nil
}

func (e *Engine) stopSinkLocked() error {
	if !e.running {
		return nil
	}
	if err := e.sink.Stop(); err != nil {
		return err
	}
	e.running = false
	return nil
}

func (e *Engine) closeSinkLocked() error {
	if !e.opened {
		return nil
	}
	e.opened = false
	return e.sink.Close()
}

// SetPosition moves the cursor to ms milliseconds, rounded to the nearest
// sample and clamped to the track. It takes effect on the next block.
func (e *Engine) SetPosition(ms int64) error {
	t := e.track.Load()
	if t == nil {
		return ErrNoTrack
	}
	pos := int64(math.Round(float64(ms) / 1000 * float64(t.SampleRate)))
	e.cursor.Store(min(max(pos, 0), int64(t.Len())))
	return nil
}

// Position returns the cursor in milliseconds.
func (e *Engine) Position() int64 {
	t := e.track.Load()
	if t == nil || t.SampleRate <= 0 {
		return 0
	}
	return e.cursor.Load() * 1000 / int64(t.SampleRate)
}

// Cursor returns the cursor in samples.
func (e *Engine) Cursor() int64 {
	return e.cursor.Load()
}

// Duration returns the track length in milliseconds.
func (e *Engine) Duration() int64 {
	t := e.track.Load()
	if t == nil || t.SampleRate <= 0 {
		return 0
	}
	return int64(t.Len()) * 1000 / int64(t.SampleRate)
}

// SetVolume stores g clamped to [0, 1]. NaN is treated as 0.
func (e *Engine) SetVolume(g float64) {
	if math.IsNaN(g) {
		g = 0
	}
	e.volume.Store(math.Float64bits(min(max(g, 0), 1)))
}

// Volume returns the current volume.
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.volume.Load())
}

// SetGain sets the dB gain of one equalizer band.
func (e *Engine) SetGain(index int, db float64) {
	e.bank.SetGain(index, db)
}

// ApplyPreset applies a named equalizer preset.
func (e *Engine) ApplyPreset(name string) error {
	return e.bank.ApplyPreset(name)
}

// Gains returns the dB gain of every band.
func (e *Engine) Gains() []float64 {
	return e.bank.Gains()
}

// Faults returns the number of blocks the equalizer passed through
// unfiltered after a numerical fault.
func (e *Engine) Faults() uint64 {
	return e.bank.Faults()
}

// render is the real-time callback. It must not allocate, log, block or do
// I/O.
func (e *Engine) render(out []float32) {
	channels := e.cfg.Channels
	frames := len(out) / channels

	if State(e.state.Load()) != Playing {
		clear(out)
		return
	}
	t := e.track.Load()
	if t == nil {
		clear(out)
		return
	}

	pos := e.cursor.Load()
	length := int64(t.Len())
	if pos >= length {
		clear(out)
		if e.state.CompareAndSwap(int32(Playing), int32(Idle)) {
			select {
			case e.ended <- struct{}{}:
			default:
			}
		}
		return
	}

	n := int(min(int64(frames), length-pos))
	if n > len(e.in) {
		// Only reachable with sinks that ask for more than FramesPerBuffer.
		e.in = make([]float64, n)
		e.proc = make([]float64, n)
	}
	in := e.in[:n]
	for i, s := range t.Samples[pos : pos+int64(n)] {
		in[i] = float64(s)
	}

	block := e.bank.Process(e.proc[:n], in)
	f64.Scale(block, block, e.Volume())

	if channels == 1 {
		for i, v := range block {
			out[i] = float32(v)
		}
	} else {
		for i, v := range block {
			s := float32(v)
			frame := out[i*channels : (i+1)*channels]
			for c := range frame {
				frame[c] = s
			}
		}
	}
	clear(out[n*channels:])

	for _, o := range *e.observers.Load() {
		o.p.Process(block)
	}

	// A seek that landed since the load wins over the advance.
	e.cursor.CompareAndSwap(pos, pos+int64(n))
}
