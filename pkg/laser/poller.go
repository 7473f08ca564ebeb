package laser

import (
	"context"
	"sync"
	"time"
)

// Poller runs fetch immediately and then on every interval until stopped.
// It owns at most one timer at a time.
type Poller struct {
	interval time.Duration
	fetch    func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(interval time.Duration, fetch func(ctx context.Context)) *Poller {
	return &Poller{interval: interval, fetch: fetch}
}

// Start cancels any running timer, then starts a new one.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	prevCancel, prevDone := p.cancel, p.done
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go func() {
		defer close(done)
		p.fetch(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.fetch(ctx)
			}
		}
	}()
}

// Stop cancels the timer and waits for an in-flight fetch to return. It is
// safe to call when nothing is running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
