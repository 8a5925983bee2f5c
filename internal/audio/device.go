// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"time"
)

// Format describes the stream a Sink is opened with.
type Format struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d frames", f.SampleRate, f.Channels, f.FramesPerBuffer)
}

// Callback fills out with interleaved float32 samples. It is invoked from
// the device's real-time thread.
type Callback func(out []float32)

// Sink is an output device driven by a pull callback.
//
// Stop must not return while a callback invocation is still running, and no
// invocation may start after it returns until Start is called again.
type Sink interface {
	Open(f Format, cb Callback) error
	Start() error
	Stop() error
	Close() error
}

// Device represents an audio device.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration
	HighLatency       time.Duration
	IsDefaultOutput   bool
}

// IsOutput reports whether the device can play audio.
func (d Device) IsOutput() bool {
	return d.MaxOutputChannels > 0
}

// Type returns "Input", "Output" or "Input/Output".
func (d Device) Type() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return ""
	}
}
