// Package notify formats and delivers the operator's WhatsApp alerts.
// Every template embeds the customer number in parentheses, which is what
// quoted-reply routing scans for when the operator answers a forwarded
// notification.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender delivers a text message to a chat.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Notifier sends alerts to the admin chat. All sends are best effort:
// a failed notification is logged and never blocks the customer path.
type Notifier struct {
	adminChat string
	sender    Sender
}

// New creates a Notifier targeting the admin chat.
func New(adminChat string, sender Sender) *Notifier {
	return &Notifier{adminChat: adminChat, sender: sender}
}

// Activity reports a bot-handled exchange, with a sale banner when the
// analysis detected one.
func (n *Notifier) Activity(ctx context.Context, name, number, message, reply string, sale bool, amount float64) {
	n.send(ctx, ActivityText(name, number, message, reply, sale, amount))
}

// Escalation alerts that a customer needs human attention and explains how
// to answer. id is the escalation id, usable as a command selector.
func (n *Notifier) Escalation(ctx context.Context, id, name, number, message string) {
	n.send(ctx, EscalationText(id, name, number, message))
}

// Report delivers a rendered report to the admin chat.
func (n *Notifier) Report(ctx context.Context, text string) {
	n.send(ctx, text)
}

func (n *Notifier) send(ctx context.Context, text string) {
	if n.adminChat == "" {
		return
	}
	if err := n.sender.SendText(ctx, n.adminChat, text); err != nil {
		slog.Warn("admin notification failed", "error", err)
	}
}

// ActivityText renders the per-message business alert.
func ActivityText(name, number, message, reply string, sale bool, amount float64) string {
	if name == "" {
		name = "Cliente"
	}
	text := fmt.Sprintf("💬 *Nova conversa*\n👤 %s (%s)\n📩 \"%s\"\n🤖 \"%s\"",
		name, number, message, reply)
	if sale {
		if amount > 0 {
			text += fmt.Sprintf("\n\n💰 *Possível venda!* R$ %.2f", amount)
		} else {
			text += "\n\n💰 *Possível venda!*"
		}
	}
	return text
}

// EscalationText renders the needs-human alert with reply instructions. The
// id doubles as a short selector: "/resp #id" answers without retyping the
// number.
func EscalationText(id, name, number, message string) string {
	if name == "" {
		name = "Cliente"
	}
	return fmt.Sprintf(
		"🔔 *Cliente precisa de você!* (#%s)\n👤 %s (%s)\n📩 \"%s\"\n\nResponda citando esta mensagem, ou use:\n/resp %s <sua resposta>\n/resp #%s <sua resposta>",
		id, name, number, message, number, id)
}
