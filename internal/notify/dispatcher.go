package notify

import (
	"context"
	"sync"
	"time"

	"token_ledger/internal/metrics"

	"github.com/sirupsen/logrus"
)

const sendTimeout = 5 * time.Second

// Dispatcher queues notifications and delivers them on background workers.
// Notify never blocks: when the queue is full the notification is dropped.
type Dispatcher struct {
	sender  Sender
	queue   chan Notification
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start before use.
func NewDispatcher(sender Sender, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Notification, queueSize),
		workers: workers,
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.Send(ctx, n)
		cancel()
		if err != nil {
			metrics.RecordNotification(n.Event, "failed")
			logrus.WithFields(logrus.Fields{
				"user_id": n.UserID,
				"event":   n.Event,
				"error":   err.Error(),
			}).Warn("Notification delivery failed")
			continue
		}
		metrics.RecordNotification(n.Event, "sent")
	}
}

// Notify enqueues n, or drops it when the queue is full or closed.
func (d *Dispatcher) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- n:
	default:
		metrics.RecordNotification(n.Event, "dropped")
		logrus.WithFields(logrus.Fields{
			"user_id": n.UserID,
			"event":   n.Event,
		}).Warn("Notification queue full, dropping")
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
