// SPDX-License-Identifier: MIT

// Package cmd wires the command line to the player.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"eqplayer/internal/audio"
	"eqplayer/internal/config"
	"eqplayer/internal/eq"
	"eqplayer/internal/log"
	"eqplayer/internal/tui"
	"eqplayer/pkg/build"

	"github.com/spf13/cobra"
)

// options holds flag values. Flags only override the config file when set.
type options struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool

	Backend    string
	DeviceID   int
	LowLatency bool
	Frames     int

	Volume  float64
	Preset  string
	Gains   []string
	Shuffle bool
	Repeat  bool

	WebSocket     bool
	WebSocketAddr string
	UDP           bool
	UDPAddr       string

	Record    bool
	OutputDir string
	BitDepth  int
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Equalizing audio player with a live spectrum",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "Path to a YAML config file (default: ./config.yaml or ./eqplayer.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show verbose output (same as --log-level debug)")

	rootCmd.AddCommand(
		newPlayCmd(opts),
		newRenderCmd(opts),
		newListCmd(),
		newDevicesCmd(),
		newPresetsCmd(),
		newBandsCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if set("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if set("verbose") {
		cfg.Debug = opts.Verbose
	}
	if set("backend") {
		cfg.Audio.Backend = strings.ToLower(opts.Backend)
	}
	if set("device") {
		cfg.Audio.OutputDevice = opts.DeviceID
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = opts.LowLatency
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = opts.Frames
	}
	if set("volume") {
		cfg.Playback.Volume = opts.Volume
	}
	if set("preset") {
		cfg.Equalizer.Preset = opts.Preset
	}
	if set("gain") {
		gains, err := parseGains(opts.Gains, len(cfg.Equalizer.Frequencies), cfg.Equalizer.Gains)
		if err != nil {
			return nil, err
		}
		cfg.Equalizer.Gains = gains
	}
	if set("shuffle") {
		cfg.Playback.Shuffle = opts.Shuffle
	}
	if set("repeat") {
		cfg.Playback.Repeat = opts.Repeat
	}
	if set("ws") {
		cfg.Transport.WebSocketEnabled = opts.WebSocket
	}
	if set("ws-addr") {
		cfg.Transport.WebSocketAddr = opts.WebSocketAddr
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = opts.UDP
	}
	if set("udp-addr") {
		cfg.Transport.UDPTargetAddress = opts.UDPAddr
	}
	if set("record") {
		cfg.Recording.Enabled = opts.Record
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = opts.OutputDir
	}
	if set("bit-depth") {
		cfg.Recording.BitDepth = opts.BitDepth
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.SetLevel(cfg.EffectiveLogLevel())
	return cfg, nil
}

// parseGains applies "index=dB" pairs on top of base.
func parseGains(pairs []string, bands int, base []float64) ([]float64, error) {
	gains := make([]float64, bands)
	copy(gains, base)
	for _, p := range pairs {
		idx, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("gain %q must look like index=dB", p)
		}
		i, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || i < 0 || i >= bands {
			return nil, fmt.Errorf("gain %q: band index must be in [0, %d)", p, bands)
		}
		db, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("gain %q: %w", p, err)
		}
		gains[i] = db
	}
	return gains, nil
}

func addEqualizerFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.Float64Var(&opts.Volume, "volume", config.DefaultVolume, "Output volume in [0, 1]")
	f.StringVarP(&opts.Preset, "preset", "p", "", "Equalizer preset (see 'presets')")
	f.StringArrayVarP(&opts.Gains, "gain", "g", nil, "Band gain as index=dB, repeatable (e.g. -g 0=6 -g 7=-3)")
	f.IntVarP(&opts.Frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Browse output devices interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := tui.StartDeviceListUI()
			if err != nil {
				return err
			}
			if sel != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Selected [%d] %s at %.0f Hz. Play with: --device %d\n",
					sel.DeviceID, sel.Name, sel.SampleRate, sel.DeviceID)
			}
			return nil
		},
	}
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List equalizer presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writePresets(cmd.OutOrStdout())
		},
	}
}

func writePresets(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range eq.PresetNames() {
		gains, err := eq.Preset(name)
		if err != nil {
			return err
		}
		cells := make([]string, len(gains))
		for i, g := range gains {
			cells[i] = fmt.Sprintf("%+.0f", g)
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func newBandsCmd(opts *options) *cobra.Command {
	var sampleRate float64
	cmd := &cobra.Command{
		Use:   "bands",
		Short: "Show the equalizer band table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return writeBands(cmd.OutOrStdout(), cfg, sampleRate)
		},
	}
	cmd.Flags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Sample rate, measured in Hertz (Hz)")
	return cmd
}

func writeBands(w io.Writer, cfg *config.Config, sampleRate float64) error {
	bank := eq.NewBank()
	if err := bank.Configure(sampleRate, cfg.Equalizer.Frequencies, cfg.Audio.FramesPerBuffer); err != nil {
		return err
	}
	bank.SetGains(cfg.Equalizer.Gains)
	if cfg.Equalizer.Preset != "" {
		if err := bank.ApplyPreset(cfg.Equalizer.Preset); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tkind\tfreq (Hz)\tlow (Hz)\thigh (Hz)\tgain (dB)\n")
	for i, b := range bank.Bands() {
		fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.1f\t%.1f\t%+.1f\n", i, b.Kind, b.Frequency, b.Low, b.High, bank.Gain(i))
	}
	return tw.Flush()
}
