// SPDX-License-Identifier: MIT

// Package control drives the playback engine from non-real-time callers:
// the CLI, the WebSocket command channel and the end-of-track watcher.
package control

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"eqplayer/internal/audio"
	"eqplayer/internal/log"
)

// faultCheckInterval is how often Run polls the equalizer fault counter.
const faultCheckInterval = 500 * time.Millisecond

// Engine is the subset of audio.Engine the controller needs.
type Engine interface {
	Load(samples []float32, sampleRate int) error
	Play() error
	Pause() error
	Resume() error
	Stop() error
	SetPosition(ms int64) error
	Position() int64
	Duration() int64
	SetVolume(g float64)
	Volume() float64
	SetGain(index int, db float64)
	Gains() []float64
	ApplyPreset(name string) error
	State() audio.State
	Ended() <-chan struct{}
	Faults() uint64
}

var _ Engine = (*audio.Engine)(nil)

// Loader decodes a file into mono samples.
type Loader interface {
	Load(path string) (samples []float32, sampleRate int, err error)
}

// Status is a snapshot of the player for displays and publishers.
type Status struct {
	State    string    `json:"state"`
	Track    string    `json:"track,omitempty"`
	Index    int       `json:"index"`
	Tracks   int       `json:"tracks"`
	Position int64     `json:"position_ms"`
	Duration int64     `json:"duration_ms"`
	Volume   float64   `json:"volume"`
	Gains    []float64 `json:"gains"`
	Shuffle  bool      `json:"shuffle"`
	Repeat   bool      `json:"repeat"`
}

// Controller serializes transport operations over an Engine and a Playlist.
type Controller struct {
	mu       sync.Mutex
	engine   Engine
	loader   Loader
	playlist *Playlist

	// Called after a track has been loaded, before it starts playing.
	onLoad func(path string)

	lastFaults uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithRandSource makes shuffle order deterministic.
func WithRandSource(src rand.Source) Option {
	return func(c *Controller) {
		c.playlist = NewPlaylist(nil, src)
	}
}

// WithLoadHook registers fn to run after each track load.
func WithLoadHook(fn func(path string)) Option {
	return func(c *Controller) {
		c.onLoad = fn
	}
}

func New(engine Engine, loader Loader, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		loader: loader,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.playlist == nil {
		c.playlist = NewPlaylist(nil, nil)
	}
	return c
}

// Open replaces the playlist. Playback is not started.
func (c *Controller) Open(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(paths) == 0 {
		return ErrEmptyPlaylist
	}
	c.playlist.Replace(paths)
	log.Infof("Playlist opened with %d tracks", len(paths))
	return nil
}

// PlayIndex loads and plays track i.
func (c *Controller) PlayIndex(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.playlist.Select(i); err != nil {
		return err
	}
	return c.loadAndPlay(i)
}

// Play resumes a paused track, restarts a loaded one, or starts the
// playlist when nothing is loaded yet.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist.Current() < 0 {
		i, err := c.playlist.Next()
		if err != nil {
			return err
		}
		return c.loadAndPlay(i)
	}
	return c.engine.Play()
}

func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Pause()
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Resume()
}

// Toggle pauses while playing and plays otherwise.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	playing := c.engine.State() == audio.Playing
	c.mu.Unlock()

	if playing {
		return c.Pause()
	}
	return c.Play()
}

func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Stop()
}

// Next skips forward. With repeat on and a track selected it restarts the
// current track instead.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked()
}

func (c *Controller) nextLocked() error {
	if c.playlist.Len() == 0 {
		return ErrEmptyPlaylist
	}
	if c.playlist.Repeat() && c.playlist.Current() >= 0 {
		return c.restartLocked()
	}

	prev := c.playlist.Current()
	i, err := c.playlist.Next()
	if err != nil {
		return err
	}
	if i == prev {
		return c.restartLocked()
	}
	return c.loadAndPlay(i)
}

// Previous skips back.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.playlist.Current()
	i, err := c.playlist.Previous()
	if err != nil {
		return err
	}
	if i == prev {
		return c.restartLocked()
	}
	return c.loadAndPlay(i)
}

// Seek moves to ms milliseconds into the current track.
func (c *Controller) Seek(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.SetPosition(ms)
}

// SetVolume sets the output volume, clamped to [0, 1].
func (c *Controller) SetVolume(g float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.SetVolume(g)
	log.Debugf("Volume set to %.0f%%", c.engine.Volume()*100)
}

// SetGain sets band i to db decibels.
func (c *Controller) SetGain(i int, db float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.SetGain(i, db)
}

// ApplyPreset applies a named equalizer preset.
func (c *Controller) ApplyPreset(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.ApplyPreset(name); err != nil {
		return err
	}
	log.Infof("Preset %q applied", name)
	return nil
}

func (c *Controller) SetShuffle(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.SetShuffle(on)
	log.Infof("Shuffle %s", onOff(on))
}

func (c *Controller) SetRepeat(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.SetRepeat(on)
	log.Infof("Repeat %s", onOff(on))
}

// Status returns a snapshot of the player.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:    c.engine.State().String(),
		Index:    c.playlist.Current(),
		Tracks:   c.playlist.Len(),
		Position: c.engine.Position(),
		Duration: c.engine.Duration(),
		Volume:   c.engine.Volume(),
		Gains:    c.engine.Gains(),
		Shuffle:  c.playlist.Shuffle(),
		Repeat:   c.playlist.Repeat(),
	}
	if path, err := c.playlist.Path(s.Index); err == nil {
		s.Track = filepath.Base(path)
	}
	return s
}

// Run handles end-of-track notifications until ctx is done: repeat restarts
// the track, otherwise the playlist advances. It also reports equalizer
// faults.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(faultCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.engine.Ended():
			if err := c.trackEnded(); err != nil {
				log.Errorf("Failed to continue playback: %v", err)
			}
		case <-ticker.C:
			c.checkFaults()
		}
	}
}

func (c *Controller) trackEnded() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist.Repeat() {
		log.Debug("Repeating current track")
		return c.restartLocked()
	}
	log.Debug("Track ended, advancing")
	return c.nextLocked()
}

func (c *Controller) checkFaults() {
	n := c.engine.Faults()
	c.mu.Lock()
	delta := n - c.lastFaults
	c.lastFaults = n
	c.mu.Unlock()

	if delta > 0 {
		log.Warnf("Equalizer fault: %d blocks passed through unfiltered", delta)
	}
}

func (c *Controller) restartLocked() error {
	if err := c.engine.SetPosition(0); err != nil {
		return err
	}
	return c.engine.Play()
}

func (c *Controller) loadAndPlay(i int) error {
	path, err := c.playlist.Path(i)
	if err != nil {
		return err
	}

	samples, rate, err := c.loader.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load track %d: %w", i, err)
	}
	if err := c.engine.Load(samples, rate); err != nil {
		return fmt.Errorf("failed to load track %d: %w", i, err)
	}
	if c.onLoad != nil {
		c.onLoad(path)
	}
	if err := c.engine.Play(); err != nil {
		return err
	}

	log.Infof("Playing %s (%d/%d)", filepath.Base(path), i+1, c.playlist.Len())
	return nil
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
