// SPDX-License-Identifier: MIT
package control

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

// ErrEmptyPlaylist is returned when a track is requested from an empty
// playlist.
var ErrEmptyPlaylist = errors.New("playlist is empty")

// Playlist sequences track indices. Sequential mode wraps around in both
// directions. Shuffle mode deals indices from a shuffled queue and keeps a
// history of what was played so Previous can walk back; the queue is
// reshuffled once exhausted. Repeat is only recorded here; the controller
// decides what to replay.
type Playlist struct {
	paths   []string
	current int

	shuffle bool
	repeat  bool
	queue   []int
	played  []int
	rng     *rand.Rand
}

// NewPlaylist returns a playlist over paths with nothing selected. A nil
// src seeds from the runtime's random source.
func NewPlaylist(paths []string, src rand.Source) *Playlist {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Playlist{
		paths:   slices.Clone(paths),
		current: -1,
		rng:     rand.New(src),
	}
}

func (p *Playlist) Len() int {
	return len(p.paths)
}

// Paths returns a copy of the track list.
func (p *Playlist) Paths() []string {
	return slices.Clone(p.paths)
}

// Current returns the selected index, or -1.
func (p *Playlist) Current() int {
	return p.current
}

// Path returns the path at index i.
func (p *Playlist) Path(i int) (string, error) {
	if i < 0 || i >= len(p.paths) {
		return "", fmt.Errorf("track index %d out of range [0, %d)", i, len(p.paths))
	}
	return p.paths[i], nil
}

// Replace swaps the track list and clears the selection.
func (p *Playlist) Replace(paths []string) {
	p.paths = slices.Clone(paths)
	p.current = -1
	if p.shuffle {
		p.reshuffle()
	}
}

func (p *Playlist) Shuffle() bool { return p.shuffle }
func (p *Playlist) Repeat() bool  { return p.repeat }

func (p *Playlist) SetRepeat(on bool) { p.repeat = on }

// SetShuffle enables shuffle with a fresh queue, or disables it and drops
// the queue and history.
func (p *Playlist) SetShuffle(on bool) {
	p.shuffle = on
	if on {
		p.reshuffle()
		return
	}
	p.queue = nil
	p.played = nil
}

// Select makes i the current track. In shuffle mode it also moves i from the
// queue to the history.
func (p *Playlist) Select(i int) error {
	if len(p.paths) == 0 {
		return ErrEmptyPlaylist
	}
	if _, err := p.Path(i); err != nil {
		return err
	}
	p.current = i
	if p.shuffle {
		if k := slices.Index(p.queue, i); k >= 0 {
			p.queue = slices.Delete(p.queue, k, k+1)
		}
		p.played = append(p.played, i)
	}
	return nil
}

// Next advances and returns the new current index.
func (p *Playlist) Next() (int, error) {
	n := len(p.paths)
	if n == 0 {
		return -1, ErrEmptyPlaylist
	}

	if p.shuffle {
		if len(p.queue) == 0 {
			p.reshuffle()
		}
		p.current = p.queue[0]
		p.queue = p.queue[1:]
		p.played = append(p.played, p.current)
		return p.current, nil
	}

	if p.current < 0 {
		p.current = 0
	} else {
		p.current = (p.current + 1) % n
	}
	return p.current, nil
}

// Previous steps back and returns the new current index. In shuffle mode it
// returns to the previously played track, or starts a fresh shuffle when
// there is no history.
func (p *Playlist) Previous() (int, error) {
	n := len(p.paths)
	if n == 0 {
		return -1, ErrEmptyPlaylist
	}

	if p.shuffle {
		if len(p.played) > 1 {
			p.queue = slices.Insert(p.queue, 0, p.current)
			p.played = p.played[:len(p.played)-1]
			p.current = p.played[len(p.played)-1]
			return p.current, nil
		}
		p.reshuffle()
		p.current = p.queue[0]
		p.queue = p.queue[1:]
		p.played = []int{p.current}
		return p.current, nil
	}

	if p.current < 0 {
		p.current = n - 1
	} else {
		p.current = (p.current - 1 + n) % n
	}
	return p.current, nil
}

func (p *Playlist) reshuffle() {
	p.queue = p.rng.Perm(len(p.paths))
	p.played = p.played[:0]
}
