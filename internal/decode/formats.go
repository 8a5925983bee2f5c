// SPDX-License-Identifier: MIT
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// WAV decodes integer PCM RIFF/WAVE files of 8 to 32 bits.
type WAV struct{}

func (WAV) Decode(r io.ReadSeeker) (*Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file: %w", ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("WAV encoding %d: %w", dec.WavAudioFormat, ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels <= 0 || bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("WAV layout %d ch/%d bit: %w", channels, bitDepth, ErrUnsupportedFormat)
	}

	// 8-bit WAV is unsigned; go-audio hands it through as 0..255.
	var offset int
	if bitDepth == 8 {
		offset = 128
	}
	scale := 1 / float32(int64(1)<<(bitDepth-1))
	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v-offset) * scale
	}

	return &Audio{
		Samples:    downmix(interleaved, channels),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
	}, nil
}

// MP3 decodes MPEG-1/2 Layer III. go-mp3 always produces 16-bit
// little-endian stereo.
type MP3 struct{}

func (MP3) Decode(r io.ReadSeeker) (*Audio, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	const channels = 2
	interleaved := make([]float32, len(raw)/2)
	for i := range interleaved {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		interleaved[i] = float32(v) / 32768
	}

	return &Audio{
		Samples:    downmix(interleaved, channels),
		SampleRate: dec.SampleRate(),
		Channels:   channels,
	}, nil
}

// Vorbis decodes Ogg Vorbis streams.
type Vorbis struct{}

func (Vorbis) Decode(r io.ReadSeeker) (*Audio, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Audio{
		Samples:    downmix(data, format.Channels),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
