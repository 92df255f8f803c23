package events

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/librarium/librarium-server/internal/id"
)

// Subscriber represents a connected event subscriber.
// Subscribers that joined before an event was published receive it;
// there is no replay for late joiners.
type Subscriber struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
}

// Publisher fans catalog events out to subscribers.
// A single broadcast goroutine drains the publish queue, so every
// subscriber observes events in publish order.
type Publisher struct {
	subscribers       map[string]*Subscriber
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewPublisher creates a new event publisher.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		subscribers:       make(map[string]*Subscriber),
		events:            make(chan Event, 1000),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start begins the event broadcasting loop.
// This should be called once at server startup in a goroutine.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	p.logger.Info("event publisher starting")

	heartbeatTicker := time.NewTicker(p.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event := <-p.events:
			p.broadcast(event)

		case <-heartbeatTicker.C:
			p.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			p.logger.Info("event publisher stopping")
			p.closeAllSubscribers()
			return
		}
	}
}

// Shutdown gracefully shuts down the publisher.
// It stops accepting new events, drains remaining events, and closes all subscribers.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.logger.Info("event publisher shutdown initiated")

	// Mark as shutdown AND close channel atomically while holding lock.
	// This prevents a race with Publish() which holds the read lock during send.
	p.shutdownMu.Lock()
	p.shutdown = true
	close(p.events)
	p.shutdownMu.Unlock()

	// Drain remaining events with context timeout.
	done := make(chan struct{})
	go func() {
		for event := range p.events {
			p.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("events drained successfully")
	case <-ctx.Done():
		p.logger.Warn("event drain timeout, some events may be lost")
	}

	p.wg.Wait()

	p.logger.Info("event publisher shutdown complete")
	return nil
}

// broadcast sends an event to every connected subscriber.
// A slow subscriber gets its event dropped rather than stalling the rest.
func (p *Publisher) broadcast(event Event) {
	var delivered, dropped int

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscribers {
		select {
		case sub.EventChan <- event:
			delivered++
		default:
			dropped++
			p.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		p.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("dropped", dropped)))
	}
}

// Subscribe registers a new subscriber and returns it.
// The caller must call Unsubscribe with the subscriber's ID when done.
func (p *Publisher) Subscribe() (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:          subID,
		EventChan:   make(chan Event, 100),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	p.mu.Lock()
	p.subscribers[sub.ID] = sub
	total := len(p.subscribers)
	p.mu.Unlock()

	p.logger.Info("event subscriber connected",
		slog.String("subscriber_id", subID),
		slog.Int("total_subscribers", total))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (p *Publisher) Unsubscribe(subID string) {
	p.mu.Lock()
	sub, ok := p.subscribers[subID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.subscribers, subID)
	total := len(p.subscribers)
	p.mu.Unlock()

	close(sub.Done)
	close(sub.EventChan)

	p.logger.Info("event subscriber disconnected",
		slog.String("subscriber_id", subID),
		slog.Duration("duration", time.Since(sub.ConnectedAt)),
		slog.Int("total_subscribers", total))
}

// Publish queues an event for broadcasting to subscribers.
// Publish order is delivery order.
func (p *Publisher) Publish(event Event) {
	// Hold read lock through the entire send operation.
	// This prevents a race with Shutdown() which holds the write lock when closing the channel.
	p.shutdownMu.RLock()
	defer p.shutdownMu.RUnlock()

	if p.shutdown {
		// Silently drop events after shutdown - this is expected during shutdown
		return
	}

	select {
	case p.events <- event:
		// Event queued for broadcast.
	default:
		// Event channel full, log and drop.
		p.logger.Error("event channel full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// Subscribers returns an iterator over all connected subscribers.
func (p *Publisher) Subscribers() iter.Seq[*Subscriber] {
	return func(yield func(*Subscriber) bool) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		for _, sub := range p.subscribers {
			if !yield(sub) {
				return
			}
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// closeAllSubscribers closes all subscriber connections (used during shutdown).
func (p *Publisher) closeAllSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subscribers {
		close(sub.Done)
		close(sub.EventChan)
	}
	p.subscribers = make(map[string]*Subscriber)

	p.logger.Info("all event subscribers disconnected")
}
