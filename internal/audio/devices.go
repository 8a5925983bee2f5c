// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"

	"eqplayer/internal/config"

	"github.com/gordonklaus/portaudio"
)

const backendPortAudio = "portaudio"

// PortAudio entry points, swapped out by tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paDevicesFunc                = portaudio.Devices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns every device PortAudio knows about. PortAudio must
// already be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if def, err := paLibDefaultOutputDeviceFunc(); err == nil && def != nil {
		defaultName = def.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		d := Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowLatency:        info.DefaultLowOutputLatency,
			HighLatency:       info.DefaultHighOutputLatency,
			IsDefaultOutput:   info.Name == defaultName && info.MaxOutputChannels > 0,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices[i] = d
	}
	return devices, nil
}

// OutputDevices initializes PortAudio, lists the devices able to play audio
// and terminates it again.
func OutputDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, deviceError(backendPortAudio, "list", err)
	}
	defer Terminate()

	all, err := HostDevices()
	if err != nil {
		return nil, deviceError(backendPortAudio, "list", err)
	}
	out := all[:0]
	for _, d := range all {
		if d.IsOutput() {
			out = append(out, d)
		}
	}
	return out, nil
}

// OutputDevice retrieves the output device for the given device ID.
// If deviceID is MinDeviceID (-1), returns the system default output device.
// Returns an error if the device ID is invalid or cannot play audio.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		return paLibDefaultOutputDeviceFunc()
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// ListDevices writes information about all available audio devices to w.
// For each device, it shows:
// - Device ID and name
// - Device type (Input/Output/Input+Output)
// - Channel count
// - Default sample rate
// - Output latency range
func ListDevices(w io.Writer) error {
	if err := Initialize(); err != nil {
		return err
	}
	defer Terminate()

	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for _, device := range devices {
		marker := ""
		if device.IsDefaultOutput {
			marker = " *default output*"
		}
		fmt.Fprintf(w, "[%d] %s (%s)%s\n", device.ID, device.Name, device.Type(), marker)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			device.LowLatency.Seconds()*1000,
			device.HighLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}

	return nil
}

// PortAudioSink plays through a PortAudio output stream. PortAudio's Stop
// waits for the callback in flight, which gives Sink.Stop its guarantee.
type PortAudioSink struct {
	DeviceID   int
	LowLatency bool

	stream      *portaudio.Stream
	initialized bool
}

var _ Sink = (*PortAudioSink)(nil)

// NewPortAudioSink returns a sink for deviceID (-1 for the default output).
func NewPortAudioSink(deviceID int, lowLatency bool) *PortAudioSink {
	return &PortAudioSink{DeviceID: deviceID, LowLatency: lowLatency}
}

func (s *PortAudioSink) Open(f Format, cb Callback) error {
	if s.stream != nil {
		return deviceError(backendPortAudio, "open", errors.New("stream already open"))
	}
	if err := Initialize(); err != nil {
		return deviceError(backendPortAudio, "open", err)
	}
	s.initialized = true

	device, err := OutputDevice(s.DeviceID)
	if err != nil {
		s.terminate()
		return deviceError(backendPortAudio, "open", err)
	}

	latency := device.DefaultHighOutputLatency
	if s.LowLatency {
		latency = device.DefaultLowOutputLatency
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: f.Channels,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: f.FramesPerBuffer,
		SampleRate:      float64(f.SampleRate),
	}

	stream, err := portaudio.OpenStream(params, func(out []float32) { cb(out) })
	if err != nil {
		s.terminate()
		return deviceError(backendPortAudio, "open", err)
	}
	s.stream = stream
	return nil
}

func (s *PortAudioSink) Start() error {
	if s.stream == nil {
		return deviceError(backendPortAudio, "start", errors.New("stream not open"))
	}
	return deviceError(backendPortAudio, "start", s.stream.Start())
}

func (s *PortAudioSink) Stop() error {
	if s.stream == nil {
		return nil
	}
	return deviceError(backendPortAudio, "stop", s.stream.Stop())
}

func (s *PortAudioSink) Close() error {
	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	s.terminate()
	return deviceError(backendPortAudio, "close", err)
}

func (s *PortAudioSink) terminate() {
	if s.initialized {
		_ = Terminate()
		s.initialized = false
	}
}
