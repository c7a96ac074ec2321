package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// SendPool runs fire-and-forget notification sends in the background. A send
// that fails is handed to the queue for durable retry, so callers never wait
// on the network.
type SendPool struct {
	sender Sender
	queue  *Queue

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewSendPool creates a pool delivering through sender and falling back to
// queue on failure.
func NewSendPool(sender Sender, queue *Queue) *SendPool {
	return &SendPool{sender: sender, queue: queue}
}

// Notify sends payload in the background. On failure the payload is enqueued
// at attempt 1 for the next drain. A disabled sender drops the payload
// outright rather than queueing work that can never be delivered.
func (p *SendPool) Notify(payload json.RawMessage) {
	if !p.sender.Enabled() {
		return
	}
	p.inFlight.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.sender.Send(ctx, payload); err != nil {
			p.queue.Enqueue(payload, 1)
		}
	}()
}

// InFlight returns the number of sends still running.
func (p *SendPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Shutdown waits for in-flight sends, allowing perSend grace for each
// outstanding send up to overallCap. Scaling by outstanding count keeps many
// concurrent sends from starving each other of a fixed budget.
func (p *SendPool) Shutdown(perSend, overallCap time.Duration) bool {
	outstanding := p.InFlight()
	if outstanding == 0 {
		return true
	}
	grace := perSend * time.Duration(outstanding)
	if grace > overallCap {
		grace = overallCap
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
