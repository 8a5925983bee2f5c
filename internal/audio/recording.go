// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"eqplayer/internal/analysis"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recorderPoolSize is the number of blocks that can wait for the writer.
const recorderPoolSize = 64

type recBlock struct {
	buf []float64
	n   int
}

// Recorder is an observer that writes the processed stream to a mono WAV
// file. The callback side only copies into a pre-allocated block; encoding
// and file I/O happen on the writer goroutine. Blocks that arrive while every
// buffer is queued are dropped and counted, unless the recorder is lossless.
type Recorder struct {
	path       string
	sampleRate int
	bitDepth   int
	blockSize  int
	lossless   bool

	file *os.File
	enc  *wav.Encoder

	free chan []float64
	full chan recBlock
	quit chan struct{}
	done chan struct{}

	recording atomic.Bool
	dropped   atomic.Uint64
	written   atomic.Uint64

	closeOnce sync.Once
	closeErr  error
	writeErr  error
}

var _ analysis.Processor = (*Recorder)(nil)

// NewRecorder creates path and starts the writer. bitDepth is 16 or 24.
// With lossless set, Process waits for a free buffer instead of dropping;
// use it only with the offline sink.
func NewRecorder(path string, sampleRate, bitDepth, blockSize int, lossless bool) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if sampleRate <= 0 || blockSize <= 0 {
		return nil, fmt.Errorf("invalid recorder format: %d Hz, %d frames", sampleRate, blockSize)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		path:       path,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		blockSize:  blockSize,
		lossless:   lossless,
		file:       file,
		enc:        wav.NewEncoder(file, sampleRate, bitDepth, 1, 1),
		free:       make(chan []float64, recorderPoolSize),
		full:       make(chan recBlock, recorderPoolSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for range recorderPoolSize {
		r.free <- make([]float64, blockSize)
	}

	r.recording.Store(true)
	go r.run()
	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Process queues a copy of block for the writer. Blocks longer than the
// configured block size are queued in block-size pieces.
func (r *Recorder) Process(block []float64) {
	if !r.recording.Load() {
		return
	}
	for len(block) > 0 {
		n := min(len(block), r.blockSize)
		if !r.queue(block[:n]) {
			return
		}
		block = block[n:]
	}
}

// queue copies chunk into a free buffer. It reports false once the recorder
// is closing.
func (r *Recorder) queue(chunk []float64) bool {
	var buf []float64
	if r.lossless {
		select {
		case buf = <-r.free:
		case <-r.quit:
			return false
		}
	} else {
		select {
		case buf = <-r.free:
		default:
			r.dropped.Add(1)
			return true
		}
	}

	n := copy(buf, chunk)
	// full has room for every pool buffer, so this never blocks.
	r.full <- recBlock{buf: buf, n: n}
	return true
}

func (r *Recorder) run() {
	defer close(r.done)

	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
		Data:           make([]int, r.blockSize),
	}
	scale := float64(int(1)<<(r.bitDepth-1) - 1)

	write := func(b recBlock) {
		intBuf.Data = intBuf.Data[:b.n]
		for i, v := range b.buf[:b.n] {
			intBuf.Data[i] = int(min(max(v, -1), 1) * scale)
		}
		if r.writeErr == nil {
			if err := r.enc.Write(intBuf); err != nil {
				r.writeErr = err
			} else {
				r.written.Add(uint64(b.n))
			}
		}
		r.free <- b.buf
	}

	for {
		select {
		case b := <-r.full:
			write(b)
		case <-r.quit:
			for {
				select {
				case b := <-r.full:
					write(b)
				default:
					return
				}
			}
		}
	}
}

// Dropped returns how many blocks (or block-size pieces of longer blocks)
// were discarded because the writer fell behind.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns how many samples reached the encoder.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Close stops accepting blocks, flushes the queue and finalizes the file.
// Unsubscribe the recorder first so no callback is still feeding it.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.recording.Store(false)
		close(r.quit)
		<-r.done

		r.closeErr = errors.Join(r.writeErr, r.enc.Close(), r.file.Close())
	})
	return r.closeErr
}

// StartRecording records the processed output of the loaded track to
// filename.
func (e *Engine) StartRecording(filename string, bitDepth int) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder != nil {
		return fmt.Errorf("already recording")
	}
	t := e.track.Load()
	if t == nil {
		return ErrNoTrack
	}

	rec, err := NewRecorder(filename, t.SampleRate, bitDepth, e.cfg.FramesPerBuffer, false)
	if err != nil {
		return err
	}
	e.recorder = rec
	e.cancelRec = e.Subscribe(rec)
	return nil
}

// StopRecording detaches and finalizes the active recording, if any.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return nil
	}
	e.cancelRec()
	err := e.recorder.Close()
	e.recorder = nil
	e.cancelRec = nil
	return err
}

// Recording returns the active recorder or nil.
func (e *Engine) Recording() *Recorder {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	return e.recorder
}
