// SPDX-License-Identifier: MIT

// Package decode turns audio files into the mono float32 buffers the
// playback engine consumes. Formats are looked up by file extension.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"eqplayer/internal/log"
)

// ErrUnsupportedFormat is returned for files whose extension has no
// registered decoder, and by decoders for encodings they cannot read.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Audio is a fully decoded file, downmixed to mono.
type Audio struct {
	Samples    []float32 // mono samples in [-1, 1]
	SampleRate int
	Channels   int // channel count of the source before downmixing
}

// Decoder reads a complete stream.
type Decoder interface {
	Decode(r io.ReadSeeker) (*Audio, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(r io.ReadSeeker) (*Audio, error)

func (f DecoderFunc) Decode(r io.ReadSeeker) (*Audio, error) { return f(r) }

// Registry maps lower-case file extensions (without the dot) to decoders.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

// DefaultRegistry returns a registry with WAV, MP3 and Ogg Vorbis support.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", WAV{})
	r.Register("wave", WAV{})
	r.Register("mp3", MP3{})
	r.Register("ogg", Vorbis{})
	r.Register("oga", Vorbis{})
	return r
}

// Register sets the decoder for ext, replacing any previous one.
func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[normalizeExt(ext)] = d
}

// Get returns the decoder for ext.
func (r *Registry) Get(ext string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.codecs[normalizeExt(ext)]
	return d, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.codecs))
	for ext := range r.codecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.Get(filepath.Ext(path))
	return ok
}

// DecodeFile opens and decodes path.
func (r *Registry) DecodeFile(path string) (*Audio, error) {
	ext := filepath.Ext(path)
	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := d.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if a.SampleRate <= 0 {
		return nil, fmt.Errorf("failed to decode %s: invalid sample rate %d", path, a.SampleRate)
	}

	log.Debugf("Decoded %s: %d Hz, %d ch, %d samples", filepath.Base(path), a.SampleRate, a.Channels, len(a.Samples))
	return a, nil
}

// Load decodes path and returns its mono samples and sample rate.
func (r *Registry) Load(path string) ([]float32, int, error) {
	a, err := r.DecodeFile(path)
	if err != nil {
		return nil, 0, err
	}
	return a.Samples, a.SampleRate, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// downmix averages interleaved frames into a mono buffer.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	scale := 1 / float32(channels)
	for i := range mono {
		var sum float32
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += v
		}
		mono[i] = sum * scale
	}
	return mono
}
