// Package event provides a small synchronous/async event dispatcher.
//
// The order service fires domain events after its transaction commits;
// listeners registered in app/listeners fan them out to the queue, the
// websocket stock feed and the kafka publisher.
package event

import (
	"sync"

	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/workerpool"
)

// Handler is a function that receives an event payload.
type Handler func(payload interface{})

var (
	mu       sync.RWMutex
	handlers = map[string][]Handler{}
	pool     *workerpool.Pool
)

// UsePool routes FireAsync through p instead of raw goroutines.
// Pass nil to go back to unbounded dispatch.
func UsePool(p *workerpool.Pool) {
	mu.Lock()
	defer mu.Unlock()
	pool = p
}

// Listen registers a handler for the given event name.
func Listen(event string, handler Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers[event] = append(handlers[event], handler)
}

// Fire dispatches an event synchronously to all registered listeners.
func Fire(event string, payload interface{}) {
	for _, h := range snapshot(event) {
		h(payload)
	}
}

// FireAsync dispatches the event to all listeners concurrently and returns
// immediately. When the pool is saturated the listener is dropped and logged
// rather than blocking the caller.
func FireAsync(event string, payload interface{}) {
	mu.RLock()
	p := pool
	mu.RUnlock()

	for _, h := range snapshot(event) {
		h := h
		if p == nil {
			go h(payload)
			continue
		}
		if err := p.TrySubmit(func() { h(payload) }); err != nil {
			logger.Warn("event: listener dropped", "event", event, "error", err)
		}
	}
}

// Listeners returns how many handlers are registered for event.
func Listeners(event string) int {
	mu.RLock()
	defer mu.RUnlock()
	return len(handlers[event])
}

// Flush removes all listeners (useful in tests).
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	handlers = map[string][]Handler{}
}

func snapshot(event string) []Handler {
	mu.RLock()
	defer mu.RUnlock()
	hs := make([]Handler, len(handlers[event]))
	copy(hs, handlers[event])
	return hs
}
