// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"

	"eqplayer/internal/log"
)

// RenderOptions shape an offline render.
type RenderOptions struct {
	Gains    []float64 // per-band dB gains, applied before Preset
	Preset   string    // optional preset name
	Volume   float64   // output volume in [0, 1]
	BitDepth int       // 16 or 24
}

// Render plays samples through a fresh engine on an OfflineSink and writes
// the processed output to path. No block is dropped. It returns when the
// track ends or ctx is done.
func Render(ctx context.Context, cfg EngineConfig, samples []float32, sampleRate int, path string, opts RenderOptions) error {
	if opts.BitDepth == 0 {
		opts.BitDepth = 16
	}
	cfg.Volume = opts.Volume

	e := NewEngine(cfg, NewOfflineSink(nil))
	defer e.Close()

	if err := e.Load(samples, sampleRate); err != nil {
		return err
	}
	e.bank.SetGains(opts.Gains)
	if opts.Preset != "" {
		if err := e.ApplyPreset(opts.Preset); err != nil {
			return err
		}
	}

	rec, err := NewRecorder(path, sampleRate, opts.BitDepth, e.cfg.FramesPerBuffer, true)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	cancel := e.Subscribe(rec)

	log.Infof("Render: %d samples at %d Hz to %s", len(samples), sampleRate, path)
	if err := e.Play(); err != nil {
		cancel()
		return errors.Join(err, rec.Close())
	}

	select {
	case <-e.Ended():
	case <-ctx.Done():
		err = ctx.Err()
	}

	err = errors.Join(err, e.Stop())
	cancel()
	err = errors.Join(err, rec.Close())
	if err == nil {
		log.Infof("Render: wrote %d samples", rec.Written())
	}
	return err
}
