// Package events is the in-process bus connecting the serve loop's parts:
// the file watcher, the rebuild scheduler, live reload and the optional
// NATS publisher.
package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// Bus delivers typed events to subscribers. Publish blocks until every
// matching subscriber accepted the event or ctx is done. Nothing is
// persisted.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

type subscription struct {
	deliver func(ctx context.Context, evt any) error
	stop    func()
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{subs: map[reflect.Type]map[uint64]*subscription{}}
}

// Subscribe returns a channel receiving events of type T, and a function
// ending the subscription. When T is an interface every published event
// implementing it is delivered.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	typ := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var closeCh sync.Once
	stop := func() { closeCh.Do(func() { close(ch) }) }

	if b.closed.Load() {
		stop()
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscription{
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("want", typ.String()).
					WithContext("got", reflect.TypeOf(evt).String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event delivery canceled").
					WithContext("event", typ.String()).
					Build()
			}
		},
		stop: stop,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		stop()
		return ch, func() {}
	}
	if b.subs[typ] == nil {
		b.subs[typ] = map[uint64]*subscription{}
	}
	b.subs[typ][id] = sub

	var unsub sync.Once
	return ch, func() {
		unsub.Do(func() {
			b.mu.Lock()
			delete(b.subs[typ], id)
			if len(b.subs[typ]) == 0 {
				delete(b.subs, typ)
			}
			b.mu.Unlock()
			stop()
		})
	}
}

// Subscribers returns the number of subscriptions for T.
func Subscribers[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Publish sends evt to every subscription whose type matches it.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if b.closed.Load() {
		return ferrors.RuntimeError("event bus is closed").Build()
	}

	typ := reflect.TypeOf(evt)
	b.mu.RLock()
	var targets []*subscription
	for st, subs := range b.subs {
		if st != typ && (st.Kind() != reflect.Interface || !typ.Implements(st)) {
			continue
		}
		for _, s := range subs {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close ends every subscription. Later publishes fail.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		var all []*subscription
		for _, subs := range b.subs {
			for _, s := range subs {
				all = append(all, s)
			}
		}
		b.subs = map[reflect.Type]map[uint64]*subscription{}
		b.mu.Unlock()
		for _, s := range all {
			s.stop()
		}
	})
}
