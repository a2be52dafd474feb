package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Politeness serializes requests to the same host and keeps at least delay
// between the end of one request and the start of the next.
// Different hosts never wait on each other.
type Politeness struct {
	delay time.Duration
	mu    sync.Mutex
	gates map[string]*hostGate
}

// hostGate is owned by whoever holds its slot; lim is only touched by the owner
type hostGate struct {
	slot chan struct{}
	lim  *rate.Limiter
}

// NewPoliteness creates a per-host gate; delay <= 0 only serializes
func NewPoliteness(delay time.Duration) *Politeness {
	return &Politeness{
		delay: delay,
		gates: make(map[string]*hostGate),
	}
}

// Acquire blocks until host is idle and the gap since its last request has
// passed, or ctx is done. The returned release must be called once the
// response has been read; calling it more than once is harmless.
func (p *Politeness) Acquire(ctx context.Context, host string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := p.gate(host)
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := p.waitGap(ctx, g); err != nil {
		<-g.slot
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if p.delay > 0 {
				// Start the gap from the moment the request finished
				lim := rate.NewLimiter(rate.Every(p.delay), 1)
				lim.AllowN(time.Now(), 1)
				g.lim = lim
			}
			<-g.slot
		})
	}
	return release, nil
}

func (p *Politeness) waitGap(ctx context.Context, g *hostGate) error {
	if p.delay <= 0 {
		return nil
	}

	r := g.lim.Reserve()
	wait := r.Delay()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (p *Politeness) gate(host string) *hostGate {
	key := strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gates[key]
	if !ok {
		g = &hostGate{slot: make(chan struct{}, 1)}
		if p.delay > 0 {
			// Burst 1: the first request to a host goes immediately
			g.lim = rate.NewLimiter(rate.Every(p.delay), 1)
		}
		p.gates[key] = g
	}
	return g
}

// Hosts returns the number of hosts seen so far
func (p *Politeness) Hosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gates)
}
