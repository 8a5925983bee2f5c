// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"sync"
)

const backendOffline = "offline"

// OfflineSink drives the callback from a goroutine as fast as it returns,
// handing each block to Write. It renders files and lets tests run the
// real callback path without hardware.
type OfflineSink struct {
	// Write receives every rendered block. The slice is reused; copy what
	// you keep. A nil Write discards the audio.
	Write func(block []float32)

	mu      sync.Mutex
	format  Format
	cb      Callback
	buf     []float32
	stop    chan struct{}
	done    chan struct{}
	opened  bool
	running bool
}

var _ Sink = (*OfflineSink)(nil)

func NewOfflineSink(write func(block []float32)) *OfflineSink {
	return &OfflineSink{Write: write}
}

func (s *OfflineSink) Open(f Format, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return deviceError(backendOffline, "open", errors.New("already open"))
	}
	if f.FramesPerBuffer <= 0 || f.Channels <= 0 {
		return deviceError(backendOffline, "open", errors.New("invalid format"))
	}
	s.format = f
	s.cb = cb
	s.buf = make([]float32, f.FramesPerBuffer*f.Channels)
	s.opened = true
	return nil
}

func (s *OfflineSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return deviceError(backendOffline, "start", errors.New("not open"))
	}
	if s.running {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.loop(s.stop, s.done)
	return nil
}

func (s *OfflineSink) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.cb(s.buf)
		if s.Write != nil {
			s.Write(s.buf)
		}
	}
}

// Stop returns once the loop goroutine has exited, so no callback is in
// flight afterwards.
func (s *OfflineSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	return nil
}

func (s *OfflineSink) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return nil
}

// Format returns the format the sink was opened with.
func (s *OfflineSink) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}
