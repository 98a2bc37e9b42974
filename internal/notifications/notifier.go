package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
)

// Notifier delivers out-of-band alerts about engine activity
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// NotifyTradeClosed formats and sends a closed-trade alert
func NotifyTradeClosed(n Notifier, trade position.ClosedTrade) error {
	if n == nil {
		return nil
	}
	level := "success"
	if trade.PnL < 0 {
		level = "warning"
	}
	msg := fmt.Sprintf("%s %s closed (%s)\nEntry $%.2f → Exit $%.2f\n%+.2fR, P/L $%.2f",
		trade.Side, trade.Symbol, trade.Reason, trade.EntryPrice, trade.ExitPrice, trade.RMultiple, trade.PnL)
	return n.SendAlert(level, msg)
}

// TelegramNotifier sends alerts through the Telegram bot API
type TelegramNotifier struct {
	token  string
	chatID string
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	emoji := "ℹ️"
	switch level {
	case "warning":
		emoji = "⚠️"
	case "error":
		emoji = "🚨"
	case "success":
		emoji = "✅"
	}

	text := fmt.Sprintf("%s *Trader Alert*\n\n%s", emoji, message)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	resp, err := http.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
