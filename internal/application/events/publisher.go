package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/taskrun/pkg/workflow"
)

// Subscription identifies a registered handler so it can be removed later.
type Subscription int

// Publisher is a single-writer, multi-subscriber broadcast channel scoped to
// one run. Publish delivers to every subscriber before returning.
type Publisher struct {
	mu       sync.Mutex
	nextID   Subscription
	order    []Subscription
	handlers map[Subscription]workflow.EventHandler
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		handlers: make(map[Subscription]workflow.EventHandler),
	}
}

// Subscribe registers a handler and returns its subscription token.
func (p *Publisher) Subscribe(handler workflow.EventHandler) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.order = append(p.order, id)
	p.handlers[id] = handler
	return id
}

// Unsubscribe removes a previously registered handler. Unknown tokens are a
// no-op.
func (p *Publisher) Unsubscribe(id Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.handlers[id]; !ok {
		return
	}
	delete(p.handlers, id)
	for i, s := range p.order {
		if s == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Publish delivers the event synchronously to all current subscribers in
// subscription order. Holding the lock across delivery serializes events
// from concurrent executors, which is what gives the run its causal event
// ordering.
func (p *Publisher) Publish(event workflow.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		p.handlers[id](event)
	}
}

// SubscriberCount returns the number of registered handlers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// LogObserver returns a handler that logs every lifecycle event through the
// given logger.
func LogObserver(logger *zap.Logger) workflow.EventHandler {
	return func(ev workflow.Event) {
		fields := []zap.Field{
			zap.String("task_id", ev.TaskID),
			zap.Int("attempt", ev.Attempt),
		}
		switch ev.Type {
		case workflow.EventTaskFailed:
			logger.Warn("task failed", append(fields, zap.String("error", ev.Error))...)
		case workflow.EventTaskRetry:
			logger.Info("task retry", append(fields, zap.String("error", ev.Error))...)
		case workflow.EventTaskCompleted:
			logger.Info("task completed", fields...)
		default:
			logger.Info("task started", fields...)
		}
	}
}
