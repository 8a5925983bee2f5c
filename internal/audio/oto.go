// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const backendOto = "oto"

// oto allows a single context per process.
var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
	otoFormat      Format
)

func sharedOtoContext(f Format) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoFormat = f
		var ready chan struct{}
		otoContext, ready, otoContextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(f.FramesPerBuffer) * time.Second / time.Duration(f.SampleRate),
		})
		if otoContextErr == nil {
			<-ready
		}
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if otoFormat.SampleRate != f.SampleRate || otoFormat.Channels != f.Channels {
		return nil, fmt.Errorf("context already initialized at %d Hz/%d ch (requested %d Hz/%d ch)",
			otoFormat.SampleRate, otoFormat.Channels, f.SampleRate, f.Channels)
	}
	return otoContext, nil
}

// streamReader adapts a Callback to the io.Reader oto pulls from. The mutex
// is held across the callback so Stop can wait out an in-flight read.
type streamReader struct {
	mu       sync.Mutex
	cb       Callback
	channels int
	active   bool
	buf      []float32
}

func (r *streamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / (4 * r.channels)
	if frames == 0 {
		return 0, nil
	}
	need := frames * r.channels
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]

	if r.active {
		r.cb(r.buf)
	} else {
		clear(r.buf)
	}
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return need * 4, nil
}

func (r *streamReader) setActive(active bool) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

// OtoSink plays through ebitengine/oto, which needs no native PortAudio
// installation. oto pulls from an io.Reader on its own goroutine.
type OtoSink struct {
	player *oto.Player
	reader *streamReader
}

var _ Sink = (*OtoSink)(nil)

func NewOtoSink() *OtoSink {
	return &OtoSink{}
}

func (s *OtoSink) Open(f Format, cb Callback) error {
	if s.player != nil {
		return deviceError(backendOto, "open", errors.New("player already open"))
	}
	ctx, err := sharedOtoContext(f)
	if err != nil {
		return deviceError(backendOto, "open", err)
	}
	s.reader = &streamReader{
		cb:       cb,
		channels: f.Channels,
		buf:      make([]float32, f.FramesPerBuffer*f.Channels),
	}
	s.player = ctx.NewPlayer(s.reader)
	s.player.SetBufferSize(f.FramesPerBuffer * f.Channels * 4)
	return nil
}

func (s *OtoSink) Start() error {
	if s.player == nil {
		return deviceError(backendOto, "start", errors.New("player not open"))
	}
	s.reader.setActive(true)
	s.player.Play()
	return nil
}

func (s *OtoSink) Stop() error {
	if s.player == nil {
		return nil
	}
	// Deactivating under the reader lock waits for any read in progress.
	s.reader.setActive(false)
	s.player.Pause()
	return nil
}

func (s *OtoSink) Close() error {
	if s.player == nil {
		return nil
	}
	s.reader.setActive(false)
	err := s.player.Close()
	s.player = nil
	s.reader = nil
	return deviceError(backendOto, "close", err)
}
