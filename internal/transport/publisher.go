// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"time"

	"eqplayer/internal/analysis"
	"eqplayer/internal/log"
)

// DefaultInterval matches the visualizer repaint tick.
const DefaultInterval = 50 * time.Millisecond

// Publisher periodically snapshots the spectrum, level and player status
// and sends them as a Frame through a Transport. It never touches the audio
// thread; it only reads the snapshots the observers publish.
type Publisher struct {
	transport Transport
	bars      BarsSource
	level     LevelSource
	status    StatusFunc
	interval  time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	seq uint64
}

// NewPublisher creates a publisher. level and status may be nil. A
// non-positive interval falls back to DefaultInterval.
func NewPublisher(t Transport, interval time.Duration, bars BarsSource, level LevelSource, status StatusFunc) (*Publisher, error) {
	if t == nil {
		return nil, fmt.Errorf("Publisher: transport cannot be nil")
	}
	if bars == nil {
		return nil, fmt.Errorf("Publisher: bars source cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	return &Publisher{
		transport: t,
		bars:      bars,
		level:     level,
		status:    status,
		interval:  interval,
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is
// a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warn("Publisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				if err := p.Publish(); err != nil {
					log.Debugf("Publisher: %v", err)
				}
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the publishing goroutine and waits for it. Safe to call more
// than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Frame builds the next frame. Each frame owns its slices because
// transports may queue them.
func (p *Publisher) Frame() Frame {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	f := Frame{
		Seq:   seq,
		Time:  time.Now().UnixMilli(),
		Bars:  p.bars.Bars(nil),
		Peaks: p.bars.Peaks(nil),
		RMS:   analysis.Decibels(0),
		Peak:  analysis.Decibels(0),
	}
	if p.level != nil {
		rms, peak := p.level.Level()
		f.RMS = analysis.Decibels(rms)
		f.Peak = analysis.Decibels(peak)
	}
	if p.status != nil {
		s := p.status()
		f.Status = &s
	}
	return f
}

// Publish sends one frame immediately.
func (p *Publisher) Publish() error {
	return p.transport.Send(p.Frame())
}

// Close stops the publisher. The transport is left open.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
