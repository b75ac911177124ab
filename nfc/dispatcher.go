package nfc

import (
	"sync"
)

// Dispatcher runs posted events one at a time, in the order they were posted,
// on a single goroutine. Handlers must not block it; anything slow has to be
// started on its own goroutine.
type Dispatcher struct {
	queue chan func()
	quit  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &Dispatcher{
		queue: make(chan func(), bufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			return

		case fn := <-d.queue:
			fn()
		}
	}
}

// Post queues fn. It returns false once the dispatcher is stopped.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.quit:
		return false
	default:
	}

	select {
	case <-d.quit:
		return false

	case d.queue <- fn:
		return true
	}
}

// Stop ends the loop. Events still queued are dropped, Done is closed once
// the event being handled has returned.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
}

// Done is closed once the loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
