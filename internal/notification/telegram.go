package notification

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dai-trader/config"
)

// maxMessageLength is Telegram's message size limit.
const maxMessageLength = 4096

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends notifications to one chat
type TelegramNotifier struct {
	api     messageSender
	chatID  int64
	enabled bool
}

// NewTelegramNotifier authorizes the bot token.
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == 0 {
		return &TelegramNotifier{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{api: bot, chatID: cfg.ChatID, enabled: true}, nil
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}
	for _, part := range splitMessage(notification.Text(), maxMessageLength) {
		if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage breaks text on line boundaries into chunks of at most
// maxLength bytes. A single longer line is cut.
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			if current != "" {
				messages = append(messages, current)
				current = ""
			}
			messages = append(messages, line[:maxLength])
			line = line[maxLength:]
		}
		if current != "" && len(current)+len(line)+1 > maxLength {
			messages = append(messages, current)
			current = line
			continue
		}
		if current != "" {
			current += "\n"
		}
		current += line
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}
