// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eqplayer/internal/analysis"
	"eqplayer/internal/audio"
	"eqplayer/internal/config"
	"eqplayer/internal/control"
	"eqplayer/internal/decode"
	"eqplayer/internal/log"
	"eqplayer/internal/transport"
	"eqplayer/internal/transport/udp"

	"github.com/spf13/cobra"
)

func newPlayCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [files...]",
		Short: "Play files through the equalizer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, args)
		},
	}

	addEqualizerFlags(cmd, opts)
	f := cmd.Flags()
	f.StringVar(&opts.Backend, "backend", config.DefaultBackend, "Output backend: portaudio or oto (oto stays at the first track's sample rate)")
	f.IntVarP(&opts.DeviceID, "device", "d", config.DefaultDeviceID,
		"Specify output device ID. Use 'list' command to see available devices.")
	f.BoolVarP(&opts.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	f.BoolVar(&opts.Shuffle, "shuffle", false, "Shuffle the playlist")
	f.BoolVar(&opts.Repeat, "repeat", false, "Repeat the current track")
	f.BoolVar(&opts.WebSocket, "ws", false, "Serve frames and accept commands over WebSocket")
	f.StringVar(&opts.WebSocketAddr, "ws-addr", config.DefaultWebSocketAddr, "WebSocket listen address")
	f.BoolVar(&opts.UDP, "udp", false, "Send spectrum bars over UDP")
	f.StringVar(&opts.UDPAddr, "udp-addr", config.DefaultUDPTargetAddress, "UDP target address")
	f.BoolVarP(&opts.Record, "record", "r", false, "Record the processed output of each track")
	f.StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultRecordingDir, "Directory for recordings")
	f.IntVar(&opts.BitDepth, "bit-depth", config.DefaultBitDepth, "Recording bit depth (16 or 24)")
	return cmd
}

func newSink(cfg *config.Config) audio.Sink {
	if cfg.Audio.Backend == config.BackendOto {
		return audio.NewOtoSink()
	}
	return audio.NewPortAudioSink(cfg.Audio.OutputDevice, cfg.Audio.LowLatency)
}

func engineConfig(cfg *config.Config) audio.EngineConfig {
	return audio.EngineConfig{
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Channels:        cfg.Audio.Channels,
		Frequencies:     cfg.Equalizer.Frequencies,
		Volume:          cfg.Playback.Volume,
	}
}

func spectrumConfig(cfg *config.Config) analysis.SpectrumConfig {
	v := cfg.Visualizer
	return analysis.SpectrumConfig{
		Bars:          v.Bars,
		Smoothing:     v.Smoothing,
		DisplayHeight: v.DisplayHeight,
		DisplayGain:   v.DisplayGain,
		PeakHoldTicks: v.PeakHoldTicks,
		PeakDecay:     v.PeakDecay,
		Window:        cfg.Window(),
	}
}

// recordingPath names the recording of track in dir.
func recordingPath(dir, track string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(track), filepath.Ext(track))
	return filepath.Join(dir, fmt.Sprintf("%s-%s.wav", base, now.UTC().Format("02-01-2006-150405")))
}

// player owns everything runPlay starts so shutdown can run in reverse.
type player struct {
	engine  *audio.Engine
	ctrl    *control.Controller
	closers []io.Closer
}

func (p *player) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i].Close())
	}
	errs = append(errs, p.engine.Close())
	return errors.Join(errs...)
}

func newPlayer(cfg *config.Config, sink audio.Sink, loader control.Loader) (*player, error) {
	engine := audio.NewEngine(engineConfig(cfg), sink)
	p := &player{engine: engine}

	spectrum := analysis.NewSpectrum(spectrumConfig(cfg))
	meter := &analysis.Meter{}
	engine.Subscribe(spectrum)
	engine.Subscribe(meter)

	engine.Bank().SetGains(cfg.Equalizer.Gains)
	if cfg.Equalizer.Preset != "" {
		if err := engine.ApplyPreset(cfg.Equalizer.Preset); err != nil {
			return nil, err
		}
	}

	var ctrlOpts []control.Option
	if cfg.Recording.Enabled {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
		ctrlOpts = append(ctrlOpts, control.WithLoadHook(func(path string) {
			if err := engine.StopRecording(); err != nil {
				log.Errorf("Error stopping recording: %v", err)
			}
			out := recordingPath(cfg.Recording.OutputDir, path, time.Now())
			if err := engine.StartRecording(out, cfg.Recording.BitDepth); err != nil {
				log.Errorf("Error starting recording: %v", err)
				return
			}
			log.Infof("Recording to %s", out)
		}))
	}
	p.ctrl = control.New(engine, loader, ctrlOpts...)
	p.ctrl.SetShuffle(cfg.Playback.Shuffle)
	p.ctrl.SetRepeat(cfg.Playback.Repeat)

	var frames transport.Transport
	if cfg.Transport.WebSocketEnabled {
		wst := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr, p.ctrl.Dispatch)
		if err := wst.Start(); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to start WebSocket transport: %w", err)
		}
		p.closers = append(p.closers, wst)
		frames = wst
	} else {
		frames = transport.NewLoggingTransport()
	}

	pub, err := transport.NewPublisher(frames, cfg.Visualizer.RefreshInterval, spectrum, meter, p.ctrl.Status)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, pub)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, sender)

		up, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, spectrum)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, up)
		up.Start()
	}
	pub.Start()
	return p, nil
}

func runPlay(ctx context.Context, cfg *config.Config, files []string) error {
	reg := decode.DefaultRegistry()
	for _, f := range files {
		if !reg.Supports(f) {
			return fmt.Errorf("%s: %w (supported: %s)", f, decode.ErrUnsupportedFormat, strings.Join(reg.Extensions(), ", "))
		}
	}

	p, err := newPlayer(cfg, newSink(cfg), reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Errorf("Error during shutdown: %v", err)
		}
	}()

	if err := p.ctrl.Open(files); err != nil {
		return err
	}
	if err := p.ctrl.Play(); err != nil {
		return err
	}

	if err := p.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Shutting down")
	return p.ctrl.Stop()
}
