package notification

import (
	"fmt"
	"sync"
	"time"

	"dai-trader/internal/events"
	"dai-trader/internal/logging"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyTradeOpen  NotificationType = "trade_open"
	NotifyTradeClose NotificationType = "trade_close"
	NotifyRiskHalt   NotificationType = "risk_halt"
	NotifySafeMode   NotificationType = "safe_mode"
	NotifyEmergency  NotificationType = "emergency"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
}

// Text renders the notification as plain text.
func (n *Notification) Text() string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + "\n\n" + n.Message
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    *logging.Logger
	now       func() time.Time
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		logger:    logging.WithComponent("notification"),
		now:       time.Now,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = m.now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			m.logger.Warn("notification failed", "notifier", n.Name(), "type", notification.Type, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// SendTradeOpen sends a trade opened notification
func (m *Manager) SendTradeOpen(symbol, tier string, price float64, shares int) error {
	return m.Send(&Notification{
		Type:    NotifyTradeOpen,
		Title:   fmt.Sprintf("Trade opened: %s", symbol),
		Message: fmt.Sprintf("BUY %d %s @ %.4f\nTier: %s", shares, symbol, price, tier),
		Symbol:  symbol,
		Price:   price,
	})
}

// SendTradeClose sends a trade closed notification
func (m *Manager) SendTradeClose(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) error {
	outcome := "win"
	if pnl < 0 {
		outcome = "loss"
	}

	return m.Send(&Notification{
		Type:       NotifyTradeClose,
		Title:      fmt.Sprintf("Trade closed (%s): %s", outcome, symbol),
		Message:    fmt.Sprintf("Entry: %.4f -> Exit: %.4f\nP&L: %.2f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPercent*100, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:    NotifyError,
		Title:   "Error: " + title,
		Message: message,
	})
}

// Attach forwards the bus events worth a human's attention.
func (m *Manager) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventTradeOpened, func(e events.Event) {
		_ = m.SendTradeOpen(str(e.Data["symbol"]), str(e.Data["tier"]), num(e.Data["entry_price"]), int(num(e.Data["shares"])))
	})
	bus.Subscribe(events.EventTradeClosed, func(e events.Event) {
		_ = m.SendTradeClose(str(e.Data["symbol"]), num(e.Data["entry_price"]), num(e.Data["exit_price"]),
			num(e.Data["pnl"]), num(e.Data["pnl_percent"]), str(e.Data["reason"]))
	})
	bus.Subscribe(events.EventRiskHalt, func(e events.Event) {
		_ = m.Send(&Notification{Type: NotifyRiskHalt, Title: "Trading halted", Message: str(e.Data["reason"])})
	})
	bus.Subscribe(events.EventSafeMode, func(e events.Event) {
		_ = m.Send(&Notification{Type: NotifySafeMode, Title: "Safe mode", Message: str(e.Data["reason"])})
	})
	bus.Subscribe(events.EventEmergencyClose, func(e events.Event) {
		_ = m.Send(&Notification{Type: NotifyEmergency, Title: "Emergency close-all", Message: str(e.Data["reason"])})
	})
	bus.Subscribe(events.EventCircuitBreaker, func(e events.Event) {
		_ = m.Send(&Notification{
			Type:    NotifyRiskHalt,
			Title:   "Circuit breaker " + str(e.Data["action"]),
			Message: str(e.Data["reason"]),
		})
	})
	bus.Subscribe(events.EventError, func(e events.Event) {
		msg := str(e.Data["message"])
		if err := str(e.Data["error"]); err != "" {
			msg += ": " + err
		}
		_ = m.SendError(str(e.Data["source"]), msg)
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
