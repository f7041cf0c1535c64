package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/api/metrics"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
	processTimeout = 30 * time.Second
)

// Dispatcher routes gateway webhook events to a fixed set of workers using
// consistent hashing on the customer id, so events for one customer are
// processed in arrival order even when the gateway delivers them out of
// order across customers.
type Dispatcher struct {
	workers []chan ports.GatewayEventInput
	service ports.ReconcileService
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.ReconcileService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.GatewayEventInput, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.GatewayEventInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers run until Stop closes
// their channels, so events accepted before shutdown are still processed.
func (d *Dispatcher) Start() {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
}

// Stop closes the worker channels and waits for queued events to drain.
func (d *Dispatcher) Stop() {
	for _, ch := range d.workers {
		close(ch)
	}
	d.wg.Wait()
}

// Enqueue sends an event to the worker responsible for its customer.
// The call blocks once the worker's buffer is full, which back-pressures
// the webhook endpoint instead of dropping events.
func (d *Dispatcher) Enqueue(event ports.GatewayEventInput) {
	idx := d.shardIndex(event.CustomerID)
	d.workers[idx] <- event
	metrics.WebhookQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// shardIndex maps a customer id deterministically to a worker index.
func (d *Dispatcher) shardIndex(customerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(id int, ch <-chan ports.GatewayEventInput) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for event := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		if err := d.service.ProcessEvent(ctx, event); err != nil {
			d.log.Error().Err(err).
				Str("event_id", event.EventID).
				Str("customer_id", event.CustomerID).
				Int("worker_id", id).
				Msg("webhook event processing failed")
		}
		cancel()
		metrics.WebhookQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
	}
}
