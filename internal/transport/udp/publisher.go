// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"beatscope/internal/analysis"
	applog "beatscope/internal/log"
)

// LatestProvider supplies the most recent feature snapshot. The engine's
// publisher satisfies this.
type LatestProvider interface {
	Latest() (analysis.FeatureSet, bool)
}

// Publisher periodically pulls the latest feature set, packs it, and
// sends it over UDP. It decouples the wire rate from the analysis rate:
// a consumer polling at 30 Hz does not care how fast the engine cycles.
type Publisher struct {
	sender   *Sender
	provider LatestProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reusable buffer for packet construction.
}

// NewPublisher creates a Publisher. An interval <= 0 defaults to 33ms
// (~30Hz).
func NewPublisher(interval time.Duration, sender *Sender, provider LatestProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("udp publisher: feature provider cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("Transport: Invalid UDP interval, defaulting to %s", interval)
	}

	return &Publisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Safe to call while running;
// extra calls are no-ops.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Transport: UDP publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Transport: UDP publisher running (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit and waits for it. Safe to call
// more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("Transport: UDP publisher stopped after %d packet(s)", p.sequenceNum)
	return nil
}

func (p *Publisher) buildAndSendPacket() {
	fs, ok := p.provider.Latest()
	if !ok {
		// Nothing analyzed yet.
		return
	}

	p.sequenceNum++
	p.packetBuffer.Reset()
	if err := NewPacket(p.sequenceNum, fs).Encode(p.packetBuffer); err != nil {
		applog.Errorf("Transport: Failed to pack UDP packet: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Debugf("Transport: UDP send failed: %v", err)
		return
	}
	applog.Debugf("Transport: Sent UDP packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close implements io.Closer by stopping the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}
