package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/events"
	"github.com/example/printdesk/internal/logger"
)

// TelegramNotifier tells the vendor chat about paid orders.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

// NewTelegramNotifier creates a notifier. Missing credentials turn every send into a no-op.
func NewTelegramNotifier(botToken, vendorChatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:   botToken,
		chatID:     vendorChatID,
		apiBase:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to chatID.
func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID, text string) error {
	if n.botToken == "" || chatID == "" {
		logger.L().Debug("telegram not configured, message skipped")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatAmount renders 12345.5 as "12,345.50 INR".
func FormatAmount(amount decimal.Decimal, currency string) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := sign + b.String() + "." + frac
	if currency != "" {
		out += " " + currency
	}
	return out
}

// PublishOrderPaid implements events.Publisher.
func (n *TelegramNotifier) PublishOrderPaid(ctx context.Context, evt events.OrderPaid) error {
	project := "pending"
	if evt.ProjectID != nil {
		project = evt.ProjectID.String()
	}
	title := evt.Title
	if title == "" {
		title = "-"
	}

	message := fmt.Sprintf(`<b>✅ New paid order</b>
<b>Title:</b> %s
<b>Project:</b> %s
<b>Gateway order:</b> %s
<b>Amount:</b> %s
<b>Confirmed via:</b> %s`,
		title,
		project,
		evt.GatewayOrderID,
		FormatAmount(evt.Amount, evt.Currency),
		evt.Source,
	)

	if err := n.SendMessage(ctx, n.chatID, message); err != nil {
		return err
	}
	logger.L().Debug("vendor notified", zap.String("gateway_order_id", evt.GatewayOrderID))
	return nil
}
