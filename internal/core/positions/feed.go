// Package positions provides an in-process fan-out of live position updates.
package positions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

const defaultBuffer = 16

// Feed fans position updates out to any number of watchers.
// Each map session or test constructs its own Feed.
type Feed struct {
	buffer int

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	dropped atomic.Uint64

	// idle runs after the last watcher unsubscribes.
	idle func()
}

type subscription struct {
	ch   chan domain.PositionUpdate
	done chan struct{}
}

// NewFeed creates a Feed whose watchers buffer up to buffer updates.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Feed{buffer: buffer, subs: make(map[uint64]*subscription)}
}

// Watch subscribes to the feed. The returned channel is closed when ctx ends
// or the feed is closed. A closed feed returns domain.ErrUnsupportedCapability.
func (f *Feed) Watch(ctx context.Context) (<-chan domain.PositionUpdate, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("position feed closed: %w", domain.ErrUnsupportedCapability)
	}
	id := f.nextID
	f.nextID++
	sub := &subscription{
		ch:   make(chan domain.PositionUpdate, f.buffer),
		done: make(chan struct{}),
	}
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.unsubscribe(id)
		case <-sub.done:
		}
	}()

	return sub.ch, nil
}

// Publish delivers u to every watcher and returns how many received it.
// Watchers whose buffer is full miss the update.
func (f *Feed) Publish(u domain.PositionUpdate) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, sub := range f.subs {
		select {
		case sub.ch <- u:
			delivered++
		default:
			f.dropped.Add(1)
		}
	}
	return delivered
}

// Watchers returns the number of active subscriptions.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped because a watcher was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close ends every subscription. Later Watch calls fail.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.done)
		close(sub.ch)
	}
}

func (f *Feed) unsubscribe(id uint64) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(f.subs, id)
	close(sub.done)
	close(sub.ch)
	empty := len(f.subs) == 0
	f.mu.Unlock()

	if empty && f.idle != nil {
		f.idle()
	}
}
