package nfc

import (
	"sync"
)

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Feed fans a value out to its subscribers on the dispatcher. Subscribers run
// in registration order.
type Feed[T any] struct {
	dispatcher *Dispatcher

	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

func NewFeed[T any](d *Dispatcher) *Feed[T] {
	return &Feed[T]{dispatcher: d}
}

// Subscribe registers fn and returns the function that removes it again.
func (f *Feed[T]) Subscribe(fn func(T)) (cancel func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs = append(f.subs, subscription[T]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			for i, s := range f.subs {
				if s.id == id {
					f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish queues v for delivery. The subscriber list is read when the event
// is handled, so a subscriber removed in between is not called.
func (f *Feed[T]) Publish(v T) bool {
	return f.dispatcher.Post(func() {
		f.mu.Lock()
		subs := make([]subscription[T], len(f.subs))
		copy(subs, f.subs)
		f.mu.Unlock()

		for _, s := range subs {
			s.fn(v)
		}
	})
}
