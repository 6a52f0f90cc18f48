package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventOrderPlaced      EventType = "ORDER_PLACED"
	EventDecision         EventType = "DECISION"
	EventStopUpdated      EventType = "STOP_UPDATED"
	EventStrategySwitched EventType = "STRATEGY_SWITCHED"
	EventRiskHalt         EventType = "RISK_HALT"
	EventSafeMode         EventType = "SAFE_MODE"
	EventEmergencyClose   EventType = "EMERGENCY_CLOSE"
	EventCircuitBreaker   EventType = "CIRCUIT_BREAKER_UPDATE"
	EventLedgerUpdate     EventType = "LEDGER_UPDATE"
	EventCycleCompleted   EventType = "CYCLE_COMPLETED"
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventError            EventType = "ERROR"
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
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
		now:         time.Now,
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

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking the cycle
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, strategy, tier string, entryPrice float64, shares int) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"strategy":    strategy,
			"tier":        tier,
			"entry_price": entryPrice,
			"shares":      shares,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, reason string, entryPrice, exitPrice float64, shares int, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"shares":      shares,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, side string, price float64, shares int) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"side":     side,
			"price":    price,
			"shares":   shares,
		},
	})
}

// PublishDecision publishes the aggregated decision for a symbol
func (eb *EventBus) PublishDecision(symbol, proposed, action string, confidence int, multiplier float64, tier string) {
	eb.Publish(Event{
		Type: EventDecision,
		Data: map[string]interface{}{
			"symbol":          symbol,
			"proposed":        proposed,
			"action":          action,
			"confidence":      confidence,
			"size_multiplier": multiplier,
			"tier":            tier,
		},
	})
}

// PublishRiskHalt publishes a halt of new entries
func (eb *EventBus) PublishRiskHalt(reason string) {
	eb.Publish(Event{
		Type: EventRiskHalt,
		Data: map[string]interface{}{"reason": reason},
	})
}

// PublishSafeMode publishes a non-trivial safety assessment
func (eb *EventBus) PublishSafeMode(reason string, dangerScore int, riskReduction float64) {
	eb.Publish(Event{
		Type: EventSafeMode,
		Data: map[string]interface{}{
			"reason":         reason,
			"danger_score":   dangerScore,
			"risk_reduction": riskReduction,
		},
	})
}

// PublishCircuitBreaker publishes a breaker state change
func (eb *EventBus) PublishCircuitBreaker(state, action, reason string) {
	eb.Publish(Event{
		Type: EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":  state,
			"action": action,
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
