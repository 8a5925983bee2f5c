// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"eqplayer/internal/fft"
	"eqplayer/internal/log"
	"eqplayer/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`     // Enable debug mode (forces debug log level).
	LogLevel   string           `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio      AudioConfig      `yaml:"audio"`
	Equalizer  EqualizerConfig  `yaml:"equalizer"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Transport  TransportConfig  `yaml:"transport"`
	Recording  RecordingConfig  `yaml:"recording"`
}

// AudioConfig holds settings related to the output device.
type AudioConfig struct {
	Backend         string `yaml:"backend"`           // "portaudio" or "oto".
	OutputDevice    int    `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // Frames per callback block (affects latency and FFT resolution).
	Channels        int    `yaml:"channels"`          // Output channels; mono audio is duplicated to each.
	LowLatency      bool   `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
}

// EqualizerConfig holds the band table and initial gains.
type EqualizerConfig struct {
	Frequencies []float64 `yaml:"frequencies"` // Band centers in Hz; first is low-pass, last is high-pass.
	Gains       []float64 `yaml:"gains"`       // Initial gains in dB, index-aligned with Frequencies.
	Preset      string    `yaml:"preset"`      // Optional preset applied after Gains.
}

// VisualizerConfig holds the spectrum bar settings.
type VisualizerConfig struct {
	Bars            int           `yaml:"bars"`
	Smoothing       float64       `yaml:"smoothing"`        // Weight of the previous bar height, in [0, 1).
	DisplayHeight   float64       `yaml:"display_height"`   // Bars clamp at display_height-10.
	DisplayGain     float64       `yaml:"display_gain"`     // Multiplier on mean bucket magnitude.
	PeakHoldTicks   int           `yaml:"peak_hold_ticks"`  // Blocks a peak is held before falling.
	PeakDecay       float64       `yaml:"peak_decay"`       // Fall per block once released.
	FFTWindow       string        `yaml:"fft_window"`       // Name of the window function (e.g., "none", "hann").
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Publish cadence for frames.
}

// PlaybackConfig holds the initial transport settings.
type PlaybackConfig struct {
	Volume  float64 `yaml:"volume"`
	Shuffle bool    `yaml:"shuffle"`
	Repeat  bool    `yaml:"repeat"`
}

// TransportConfig holds settings related to sending frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames and accept commands over WebSocket.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending bar data over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
}

// RecordingConfig holds settings for capturing the processed output.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record processed output to WAV while playing.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 24.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultDeviceID,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        DefaultChannels,
			LowLatency:      DefaultLowLatency,
		},
		Equalizer: EqualizerConfig{
			Frequencies: DefaultFrequencies(),
		},
		Visualizer: VisualizerConfig{
			Bars:            DefaultBars,
			Smoothing:       DefaultSmoothing,
			DisplayHeight:   DefaultDisplayHeight,
			DisplayGain:     DefaultDisplayGain,
			PeakHoldTicks:   DefaultPeakHoldTicks,
			PeakDecay:       DefaultPeakDecay,
			FFTWindow:       DefaultFFTWindow,
			RefreshInterval: DefaultRefreshInterval,
		},
		Playback: PlaybackConfig{
			Volume: DefaultVolume,
		},
		Transport: TransportConfig{
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"eqplayer.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel))
	}

	// Audio
	switch c.Audio.Backend {
	case BackendPortAudio, BackendOto:
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q must be %q or %q", c.Audio.Backend, BackendPortAudio, BackendOto))
	}
	if c.Audio.OutputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.output_device must be >= %d, got %d", MinDeviceID, c.Audio.OutputDevice))
	}
	if fpb := c.Audio.FramesPerBuffer; fpb <= 0 || fpb > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be in [1, %d], got %d", MaxBufferFrames, fpb))
	} else if !bitint.IsPowerOfTwo(fpb) {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be a power of 2, got %d (try %d)", fpb, bitint.NextPowerOfTwo(fpb)))
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > MaxChannels {
		errs = append(errs, fmt.Errorf("audio.channels must be in [1, %d], got %d", MaxChannels, c.Audio.Channels))
	}

	// Equalizer
	n := len(c.Equalizer.Frequencies)
	if n < 2 || n > MaxBands {
		errs = append(errs, fmt.Errorf("equalizer.frequencies needs 2 to %d entries, got %d", MaxBands, n))
	}
	for i, f := range c.Equalizer.Frequencies {
		if f <= 0 {
			errs = append(errs, fmt.Errorf("equalizer.frequencies[%d] must be positive, got %v", i, f))
		}
	}
	if len(c.Equalizer.Gains) > n {
		errs = append(errs, fmt.Errorf("equalizer.gains has %d entries for %d bands", len(c.Equalizer.Gains), n))
	}

	// Visualizer
	if c.Visualizer.Bars < 1 {
		errs = append(errs, fmt.Errorf("visualizer.bars must be >= 1, got %d", c.Visualizer.Bars))
	}
	if c.Visualizer.Smoothing < 0 || c.Visualizer.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("visualizer.smoothing must be in [0, 1), got %v", c.Visualizer.Smoothing))
	}
	if c.Visualizer.DisplayHeight <= 10 {
		errs = append(errs, fmt.Errorf("visualizer.display_height must be > 10, got %v", c.Visualizer.DisplayHeight))
	}
	if c.Visualizer.DisplayGain <= 0 {
		errs = append(errs, fmt.Errorf("visualizer.display_gain must be positive, got %v", c.Visualizer.DisplayGain))
	}
	if c.Visualizer.PeakHoldTicks < 0 || c.Visualizer.PeakDecay < 0 {
		errs = append(errs, errors.New("visualizer.peak_hold_ticks and peak_decay must not be negative"))
	}
	if _, err := fft.ParseWindow(c.Visualizer.FFTWindow); err != nil {
		errs = append(errs, fmt.Errorf("visualizer.fft_window: %w", err))
	}
	if c.Visualizer.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("visualizer.refresh_interval must be positive, got %s", c.Visualizer.RefreshInterval))
	}

	// Playback
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be in [0, 1], got %v", c.Playback.Volume))
	}

	// Transport
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		errs = append(errs, errors.New("transport.websocket_addr must be set when WebSocket is enabled"))
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	// Recording
	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" {
			errs = append(errs, errors.New("recording.output_dir must be set when recording is enabled"))
		}
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
			errs = append(errs, fmt.Errorf("recording.bit_depth must be 16 or 24, got %d", c.Recording.BitDepth))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets ENV_* variables replace the most commonly tweaked
// settings without editing the file.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_AUDIO_{...}

	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		cfg.Audio.Backend = strings.ToLower(val)
		log.Infof("configuration: Overriding audio.backend from env: %s", val)
	}
	// ENV_AUDIO_OUTPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_AUDIO_OUTPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.OutputDevice = iVal
			log.Infof("configuration: Overriding audio.output_device from env: %d", iVal)
		}
	}

	// ENV_PLAYBACK_VOLUME
	if val, ok := os.LookupEnv("ENV_PLAYBACK_VOLUME"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Playback.Volume = fVal
			log.Infof("configuration: Overriding playback.volume from env: %v", fVal)
		}
	}
	// ENV_EQ_PRESET
	if val, ok := os.LookupEnv("ENV_EQ_PRESET"); ok {
		cfg.Equalizer.Preset = val
		log.Infof("configuration: Overriding equalizer.preset from env: %s", val)
	}

	// ENV_WS_{...}

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			log.Infof("configuration: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketAddr = val
		log.Infof("configuration: Overriding transport.websocket_addr from env: %s", val)
	}

	// ENV_UDP_{...}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

// EffectiveLogLevel resolves LogLevel with Debug taking precedence.
func (c *Config) EffectiveLogLevel() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// Window returns the parsed FFT window. Validate has already rejected
// unknown names.
func (c *Config) Window() fft.Window {
	w, _ := fft.ParseWindow(c.Visualizer.FFTWindow)
	return w
}
