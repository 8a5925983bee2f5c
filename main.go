// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"eqplayer/cmd"
	"eqplayer/internal/log"
	"eqplayer/pkg/build"
)

// main wires signals to a context and hands over to the command line.
// Playback commands block until SIGINT/SIGTERM cancels the context; the
// engine is closed and any recording finalized before exit.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("Build info incomplete, using defaults: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
