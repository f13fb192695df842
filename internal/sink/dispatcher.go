package sink

import (
	"log"
	"sync"
	"sync/atomic"

	"FlowSentry/internal/model"
)

// Dispatcher fans finalized decisions out to the configured sinks through a
// bounded queue. Enqueue never blocks: when the queue is full the newest
// payload is dropped and counted, so a slow or unreachable backend can never
// stall flow ingestion.
type Dispatcher struct {
	sinks []model.Sink
	queue chan *model.DecisionPayload
	wg    sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher creates a dispatcher over the given sinks with the given
// queue capacity.
func NewDispatcher(sinks []model.Sink, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan *model.DecisionPayload, queueSize),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Enqueue hands a payload to the delivery worker without blocking. A full
// queue drops the payload (drop-new policy) and increments the drop counter.
func (d *Dispatcher) Enqueue(p *model.DecisionPayload) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case d.queue <- p:
	default:
		d.dropped.Add(1)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for p := range d.queue {
		for _, s := range d.sinks {
			if err := s.Write(p); err != nil {
				d.failed.Add(1)
				log.Printf("Warning: sink '%s' delivery failed: %v", s.Name(), err)
				continue
			}
			d.delivered.Add(1)
		}
	}
}

// Stop drains the queue, waits for the worker, and closes every sink.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			log.Printf("Warning: closing sink '%s': %v", s.Name(), err)
		}
	}
}

// Stats returns per-sink-write counters: delivered is the number of
// successful sink writes, failed the number of failed ones, dropped the
// number of payloads rejected by a full queue.
func (d *Dispatcher) Stats() (delivered, dropped, failed uint64) {
	return d.delivered.Load(), d.dropped.Load(), d.failed.Load()
}
