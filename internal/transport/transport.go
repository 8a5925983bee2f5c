// SPDX-License-Identifier: MIT

// Package transport publishes visualization frames to remote clients and
// feeds their control commands back to the player.
package transport

import (
	"eqplayer/internal/control"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// BarsSource provides the latest spectrum snapshot. analysis.Spectrum
// implements it.
type BarsSource interface {
	Bars(dst []float64) []float64
	Peaks(dst []float64) []float64
}

// LevelSource provides the latest block level. analysis.Meter implements it.
type LevelSource interface {
	Level() (rms, peak float64)
}

// StatusFunc returns the current player status.
type StatusFunc func() control.Status

// CommandHandler applies a control command received from a client.
type CommandHandler func(cmd control.Command) error

// Frame is one visualization update.
type Frame struct {
	Seq    uint64          `json:"seq"`
	Time   int64           `json:"time"` // Unix milliseconds
	Bars   []float64       `json:"bars"`
	Peaks  []float64       `json:"peaks"`
	RMS    float64         `json:"rms_db"`
	Peak   float64         `json:"peak_db"`
	Status *control.Status `json:"status,omitempty"`
}
