// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrDevice is wrapped by every DeviceError.
	ErrDevice = errors.New("audio device failure")
	// ErrNoTrack is returned by transport calls that need a loaded track.
	ErrNoTrack = errors.New("no track loaded")
	// ErrInvalidState is returned when a transport call does not apply to
	// the current playback state.
	ErrInvalidState = errors.New("invalid playback state")
)

// DeviceError reports an output device that failed to open, start, stop or
// close. Playback stays Idle when Open or Start fails.
type DeviceError struct {
	Op      string // "open", "start", "stop", "close"
	Backend string
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}

func deviceError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Backend: backend, Err: err}
}
