// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"eqplayer/internal/log"
	"eqplayer/internal/transport"
)

// HeaderSize is the fixed prefix of every packet.
const HeaderSize = 4 + 8 + 2

// UDPPublisher periodically fetches the spectrum bars, packs them into a
// binary packet and sends them over UDP using a UDPSender. It runs in a
// separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender           // The underlying UDP sender instance.
	bars     transport.BarsSource // Source of the smoothed bar heights.
	interval time.Duration        // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.

	// Reused between ticks; only the publisher goroutine touches them.
	barBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 33ms (~30Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, bars transport.BarsSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if bars == nil {
		return nil, fmt.Errorf("UDPPublisher: bars source cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	log.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &UDPPublisher{
		sender:       sender,
		bars:         bars,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process. Subsequent calls are no-ops
// while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warn("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				if err := p.buildAndSendPacket(); err != nil {
					log.Debugf("UDPPublisher: %v", err)
				}
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. Safe to call multiple times.
func (p *UDPPublisher) Stop() error {
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
	log.Debug("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Bar Count   |       Bar Heights       |
|      (uint32)     |  (int64, ns of epoch) |    (uint16)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+
*/

// buildPacket packs the current bars into the reusable packet buffer and
// returns its bytes, valid until the next call.
func (p *UDPPublisher) buildPacket() ([]byte, error) {
	p.barBuffer = p.bars.Bars(p.barBuffer)
	if cap(p.f32Buffer) < len(p.barBuffer) {
		p.f32Buffer = make([]float32, len(p.barBuffer))
	}
	p.f32Buffer = p.f32Buffer[:len(p.barBuffer)]
	for i, v := range p.barBuffer {
		p.f32Buffer[i] = float32(v)
	}

	p.sequenceNum++
	timestamp := time.Now().UnixNano()
	count := uint16(len(p.f32Buffer))

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, count)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		return nil, fmt.Errorf("packing packet %d: %w", p.sequenceNum, err)
	}
	return p.packetBuffer.Bytes(), nil
}

func (p *UDPPublisher) buildAndSendPacket() error {
	packet, err := p.buildPacket()
	if err != nil {
		return err
	}
	return p.sender.Send(packet)
}

// Close implements io.Closer by stopping the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)

// Packet is a decoded bars packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Bars      []float32
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*n {
		return Packet{}, fmt.Errorf("packet length %d does not match %d bars", len(b), n)
	}
	p.Bars = make([]float32, n)
	if err := binary.Read(bytes.NewReader(b[HeaderSize:]), binary.BigEndian, p.Bars); err != nil {
		return Packet{}, err
	}
	return p, nil
}
