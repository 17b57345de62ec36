package local

import (
	"context"
	"sync"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

// Bus delivers signals synchronously on the publisher's goroutine, to
// handlers in subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[domain.SignalName][]subscription
}

type subscription struct {
	id      uint64
	handler ports.SignalHandler
}

func New() *Bus {
	return &Bus{handlers: make(map[domain.SignalName][]subscription)}
}

func (b *Bus) Publish(ctx context.Context, sig domain.Signal) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[sig.Name]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub.handler(ctx, sig)
	}
	return nil
}

func (b *Bus) Subscribe(name domain.SignalName, handler ports.SignalHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}, nil
}

func (b *Bus) remove(name domain.SignalName, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[name]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[name]) == 0 {
		delete(b.handlers, name)
	}
}

// Subscribers reports how many handlers listen for name.
func (b *Bus) Subscribers(name domain.SignalName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
