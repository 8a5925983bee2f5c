// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the player.
const (
	// Audio output defaults
	DefaultBackend         = BackendPortAudio
	DefaultChannels        = 2           // Mono tracks are duplicated to stereo
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 1024        // Balanced latency/FFT resolution
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 44100       // Used when a track does not say otherwise

	// Visualizer defaults
	DefaultBars            = 32
	DefaultSmoothing       = 0.8
	DefaultDisplayHeight   = 100.0
	DefaultDisplayGain     = 1000.0
	DefaultPeakHoldTicks   = 10
	DefaultPeakDecay       = 2.0
	DefaultFFTWindow       = "none"
	DefaultRefreshInterval = 50 * time.Millisecond

	// Playback defaults
	DefaultVolume = 0.7

	// Transport defaults
	DefaultWebSocketAddr    = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Recording defaults
	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxChannels     = 8
	MaxBands        = 32
)

// Output backends.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
)

// DefaultFrequencies are the equalizer band centers in Hz.
func DefaultFrequencies() []float64 {
	return []float64{60, 170, 310, 600, 1000, 3000, 6000, 12000}
}
