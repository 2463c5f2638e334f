package main

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/voxel8/interlockd/internal/interlock"
	"github.com/voxel8/interlockd/internal/mqtt"
)

const (
	defaultOutboxSize = 256
	drainTimeout      = 5 * time.Second
)

var errOutboxClosed = errors.New("outbox closed")

// job is one unit of broker or journal work.
type job struct {
	name string
	run  func() error
}

// outbox runs broker and journal work on its own goroutine so the control
// cycle never waits on the network or the database. Jobs run in submission
// order. When the queue is full the oldest job is dropped.
type outbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []job
	capacity int
	dropped  int
	closed   bool
	done     chan struct{}
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	o := &outbox{
		jobs:     make([]job, 0, capacity),
		capacity: capacity,
		done:     make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	go o.work()
	return o
}

// submit queues run. It never blocks.
func (o *outbox) submit(name string, run func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOutboxClosed
	}
	if len(o.jobs) == o.capacity {
		if o.dropped == 0 {
			log.Printf("outbox: queue full (%d jobs), dropping oldest", o.capacity)
		}
		o.dropped++
		o.pop()
	}
	o.jobs = append(o.jobs, job{name: name, run: run})
	o.cond.Signal()
	return nil
}

// pop removes the head of the queue. Caller holds mu.
func (o *outbox) pop() job {
	j := o.jobs[0]
	copy(o.jobs, o.jobs[1:])
	o.jobs[len(o.jobs)-1] = job{}
	o.jobs = o.jobs[:len(o.jobs)-1]
	return j
}

func (o *outbox) work() {
	defer close(o.done)
	for {
		o.mu.Lock()
		for len(o.jobs) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.jobs) == 0 {
			o.mu.Unlock()
			return
		}
		j := o.pop()
		o.mu.Unlock()

		if err := j.run(); err != nil {
			log.Printf("%s error: %v", j.name, err)
		}
	}
}

// Dropped returns how many jobs were discarded because the queue was full.
func (o *outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// close stops accepting jobs and waits up to timeout for the queue to drain.
func (o *outbox) close(timeout time.Duration) error {
	o.mu.Lock()
	o.closed = true
	pending := len(o.jobs)
	o.cond.Broadcast()
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("outbox: %d jobs still pending after %v", pending, timeout)
	}
}

// asyncPublisher queues every publish on an outbox and returns at once.
type asyncPublisher struct {
	out *outbox
	pub mqtt.Publisher
}

func (a asyncPublisher) PublishEvent(ts time.Time, event interlock.Event) error {
	return a.out.submit("publish event", func() error { return a.pub.PublishEvent(ts, event) })
}

func (a asyncPublisher) PublishFault(fault mqtt.FaultEvent) error {
	return a.out.submit("publish fault", func() error { return a.pub.PublishFault(fault) })
}

func (a asyncPublisher) PublishSystem(event mqtt.SystemEvent) error {
	return a.out.submit("publish "+event.Event, func() error { return a.pub.PublishSystem(event) })
}

func (a asyncPublisher) Notify(line string) error {
	return a.out.submit("publish host line", func() error { return a.pub.Notify(line) })
}

func (a asyncPublisher) Close() error {
	return a.pub.Close()
}
