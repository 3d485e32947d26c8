package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrNoSubscribers = errors.New("eventbus: no subscribers")

type Handler[T any] func(ctx context.Context, event T) error

type subscriber[T any] struct {
	name    string
	handler Handler[T]
}

// Bus fans an event out to every subscriber in registration order. A failing or
// panicking handler does not stop the others; their errors are joined.
type Bus[T any] struct {
	mu          sync.RWMutex
	log         *logrus.Logger
	subscribers []subscriber[T]
}

func New[T any](log *logrus.Logger) *Bus[T] {
	return &Bus[T]{log: log}
}

func (b *Bus[T]) Subscribe(name string, handler Handler[T]) {
	if handler == nil {
		panic("eventbus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber[T]{name: name, handler: handler})
}

func (b *Bus[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.name == name {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = nil
}

func (b *Bus[T]) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus[T]) Publish(ctx context.Context, event T) error {
	b.mu.RLock()
	subs := make([]subscriber[T], len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	if len(subs) == 0 {
		if b.log != nil {
			b.log.Debugf("eventbus.Publish: no subscribers for %T", event)
		}
		return ErrNoSubscribers
	}

	var errs []error
	for _, s := range subs {
		if err := b.call(ctx, s, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus[T]) call(ctx context.Context, s subscriber[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", s.name, r)
			if b.log != nil {
				b.log.Errorf("eventbus: handler %s panicked with %T: %v", s.name, event, r)
			}
		}
	}()
	if err := s.handler(ctx, event); err != nil {
		return fmt.Errorf("eventbus: handler %s: %w", s.name, err)
	}
	return nil
}
