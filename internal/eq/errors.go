// SPDX-License-Identifier: MIT
package eq

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid filter bank configuration")
	// ErrUnknownPreset is returned by Preset for names it does not know.
	ErrUnknownPreset = errors.New("unknown equalizer preset")
)

// ConfigError reports a sample rate or frequency table that cannot be turned
// into a filter bank. It is fatal for playback until the table is fixed.
type ConfigError struct {
	SampleRate float64
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("eq: %v at %.0f Hz: %s", ErrInvalidConfig, e.SampleRate, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configErrorf(sampleRate float64, format string, args ...any) *ConfigError {
	return &ConfigError{SampleRate: sampleRate, Reason: fmt.Sprintf(format, args...)}
}
