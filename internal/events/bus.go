package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventDecisionMade    EventType = "DECISION_MADE"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderRejected   EventType = "ORDER_REJECTED"
	EventTradeExecuted   EventType = "TRADE_EXECUTED"
	EventWeightsAmended  EventType = "WEIGHTS_AMENDED"
	EventBreakerTripped  EventType = "BREAKER_TRIPPED"
	EventBreakerReset    EventType = "BREAKER_RESET"
	EventRiskDenied      EventType = "RISK_DENIED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(source, symbol, action string, confidence, score float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"source":     source,
			"symbol":     symbol,
			"action":     action,
			"confidence": confidence,
			"score":      score,
		},
	})
}

// PublishDecision publishes a combine-round decision event
func (eb *EventBus) PublishDecision(symbol, action string, score, confidence float64) {
	eb.Publish(Event{
		Type: EventDecisionMade,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"action":     action,
			"score":      score,
			"confidence": confidence,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID int64, symbol, side string, price, quantity float64) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"side":     side,
			"price":    price,
			"quantity": quantity,
		},
	})
}

// PublishOrderRejected publishes an exchange-side rejection event
func (eb *EventBus) PublishOrderRejected(symbol, side, reason string) {
	eb.Publish(Event{
		Type: EventOrderRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"reason": reason,
		},
	})
}

// PublishWeightsAmended publishes a weight amendment event
func (eb *EventBus) PublishWeightsAmended(amendmentID, authority, reason string) {
	eb.Publish(Event{
		Type: EventWeightsAmended,
		Data: map[string]interface{}{
			"amendment_id": amendmentID,
			"authority":    authority,
			"reason":       reason,
		},
	})
}

// PublishBreakerTripped publishes a circuit breaker trip event
func (eb *EventBus) PublishBreakerTripped(symbol, reason string) {
	eb.Publish(Event{
		Type: EventBreakerTripped,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
		},
	})
}

// PublishBreakerReset publishes a circuit breaker reset event
func (eb *EventBus) PublishBreakerReset(symbol string) {
	eb.Publish(Event{
		Type: EventBreakerReset,
		Data: map[string]interface{}{
			"symbol": symbol,
		},
	})
}

// PublishRiskDenied publishes a risk denial event
func (eb *EventBus) PublishRiskDenied(symbol, side, reason string) {
	eb.Publish(Event{
		Type: EventRiskDenied,
		Data: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
