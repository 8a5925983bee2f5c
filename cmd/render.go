// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"eqplayer/internal/audio"
	"eqplayer/internal/decode"

	"github.com/spf13/cobra"
)

func newRenderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <input> <output.wav>",
		Short: "Equalize a file offline and write the result as WAV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			samples, rate, err := decode.DefaultRegistry().Load(args[0])
			if err != nil {
				return err
			}

			// Render at unity unless asked otherwise.
			volume := 1.0
			if cmd.Flags().Changed("volume") {
				volume = cfg.Playback.Volume
			}

			err = audio.Render(cmd.Context(), engineConfig(cfg), samples, rate, args[1], audio.RenderOptions{
				Gains:    cfg.Equalizer.Gains,
				Preset:   cfg.Equalizer.Preset,
				Volume:   volume,
				BitDepth: cfg.Recording.BitDepth,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s to %s\n", args[0], args[1])
			return nil
		},
	}

	addEqualizerFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.BitDepth, "bit-depth", 16, "Output bit depth (16 or 24)")
	return cmd
}
