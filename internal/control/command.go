// SPDX-License-Identifier: MIT
package control

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned by Dispatch for unrecognized actions.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a control request received from a remote client, e.g.
//
//	{"action": "gain", "band": 2, "value": -6}
type Command struct {
	Action  string  `json:"action"`
	Index   int     `json:"index,omitempty"`    // select
	Band    int     `json:"band,omitempty"`     // gain
	Value   float64 `json:"value,omitempty"`    // gain dB, volume
	Ms      int64   `json:"position,omitempty"` // seek
	Preset  string  `json:"preset,omitempty"`
	Enabled bool    `json:"enabled,omitempty"` // shuffle, repeat
}

// Dispatch applies cmd to the controller.
func (c *Controller) Dispatch(cmd Command) error {
	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "play":
		return c.Play()
	case "pause":
		return c.Pause()
	case "resume":
		return c.Resume()
	case "toggle":
		return c.Toggle()
	case "stop":
		return c.Stop()
	case "next":
		return c.Next()
	case "previous", "prev":
		return c.Previous()
	case "select":
		return c.PlayIndex(cmd.Index)
	case "seek":
		return c.Seek(cmd.Ms)
	case "volume":
		c.SetVolume(cmd.Value)
		return nil
	case "gain":
		c.SetGain(cmd.Band, cmd.Value)
		return nil
	case "preset":
		return c.ApplyPreset(cmd.Preset)
	case "shuffle":
		c.SetShuffle(cmd.Enabled)
		return nil
	case "repeat":
		c.SetRepeat(cmd.Enabled)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
}
