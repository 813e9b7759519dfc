package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/config"
)

const helpText = `🤖 *Comandos disponíveis*

!dados ou !relatorio — resumo de hoje
/resp <numero ou #id> <texto> — responde o cliente e assume a conversa
/ign <numero ou #id> — dispensa o atendimento pendente
!responder [<numero>] <texto> — idem /resp (numero opcional)
!ignorar [<numero>] — idem /ign (numero opcional)
!assumir <numero> — assume a conversa sem responder
!liberar <numero> — devolve a conversa ao bot
!ajuda — esta mensagem

Responder citando uma notificação também funciona.`

// Reporter renders the aggregate counts for the !dados command.
type Reporter interface {
	TodayReport(ctx context.Context) (string, error)
}

// Commands parses messages from the admin chat and drives the Coordinator.
type Commands struct {
	co       *Coordinator
	reporter Reporter
}

// NewCommands wires the admin command surface.
func NewCommands(co *Coordinator, reporter Reporter) *Commands {
	return &Commands{co: co, reporter: reporter}
}

// Handle interprets an admin message. It returns the text to send back on
// the admin chat; handled is false when the message is neither a command
// nor a quoted reply and should be ignored.
func (h *Commands) Handle(ctx context.Context, msg bus.InboundMessage) (reply string, handled bool) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", false
	}

	cmd, rest := splitCommand(text)
	adminChat := msg.ChatID

	switch cmd {
	case "!dados", "!relatorio":
		return h.report(ctx), true

	case "!ajuda":
		return helpText, true

	case "/resp":
		selector, body := splitSelector(rest)
		if selector == "" {
			return "✏️ Use: /resp <numero> <texto>", true
		}
		return h.resolve(ctx, adminChat, selector, body), true

	case "!responder":
		selector, body := splitSelector(rest)
		return h.resolve(ctx, adminChat, selector, body), true

	case "/ign":
		selector, _ := splitSelector(rest)
		if selector == "" {
			return "✏️ Use: /ign <numero>", true
		}
		return h.dismiss(adminChat, selector), true

	case "!ignorar":
		selector, _ := splitSelector(rest)
		return h.dismiss(adminChat, selector), true

	case "!assumir":
		selector, _ := splitSelector(rest)
		if selector == "" {
			return "✏️ Use: !assumir <numero>", true
		}
		key := h.co.TakeOver(selector)
		return fmt.Sprintf("👩‍💼 Você assumiu a conversa com %s. Use !liberar %s para devolver ao bot.", key, key), true

	case "!liberar":
		selector, _ := splitSelector(rest)
		if selector == "" {
			return "✏️ Use: !liberar <numero>", true
		}
		key := h.co.Release(selector)
		return fmt.Sprintf("🤖 Bot reativado para %s.", key), true
	}

	// Not a command: a quoted reply resolves the escalation it references.
	if msg.Quoted != nil {
		target, err := h.co.ResolveQuoted(ctx, adminChat, msg.Quoted, text)
		if err != nil {
			return quotedErrorText(err), true
		}
		return fmt.Sprintf("✅ Resposta enviada para %s. Conversa agora é sua; use !liberar %s para devolver ao bot.", target, target), true
	}

	return "", false
}

func (h *Commands) report(ctx context.Context) string {
	if h.reporter == nil {
		return "📊 Relatórios indisponíveis."
	}
	text, err := h.reporter.TodayReport(ctx)
	if err != nil {
		slog.Warn("today report failed", "error", err)
		return "⚠️ Não consegui gerar o relatório agora. Tente de novo em instantes."
	}
	return text
}

func (h *Commands) resolve(ctx context.Context, adminChat, selector, body string) string {
	esc, err := h.co.Resolve(ctx, adminChat, selector, body)
	switch {
	case errors.Is(err, ErrEmptyReply):
		return "✏️ Faltou a mensagem. Use: /resp <numero> <texto>"
	case errors.Is(err, ErrNoPendingTarget):
		return "⚠️ Nenhum atendimento pendente para esse número. Use /resp <numero> <mensagem> com o número completo."
	case err != nil:
		slog.Warn("resolve escalation failed", "selector", selector, "error", err)
		return "⚠️ Não consegui enviar a resposta. Tente de novo."
	}
	return fmt.Sprintf("✅ Resposta enviada para %s. Conversa agora é sua; use !liberar %s para devolver ao bot.", esc.Customer, esc.Customer)
}

func (h *Commands) dismiss(adminChat, selector string) string {
	esc, err := h.co.Dismiss(adminChat, selector)
	if err != nil {
		return "⚠️ Nenhum atendimento pendente para dispensar."
	}
	return fmt.Sprintf("🗑️ Atendimento de %s dispensado.", esc.Customer)
}

func quotedErrorText(err error) string {
	if errors.Is(err, ErrEmptyReply) {
		return "✏️ Mensagem vazia — escreva a resposta junto com a citação."
	}
	if errors.Is(err, ErrNoPendingTarget) {
		return "⚠️ Não identifiquei o cliente dessa mensagem. Use /resp <numero> <mensagem>."
	}
	slog.Warn("quoted resolve failed", "error", err)
	return "⚠️ Não consegui enviar a resposta. Tente de novo."
}

// splitCommand returns the lowercased first token and the remainder.
func splitCommand(text string) (cmd, rest string) {
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return cmd, rest
}

// splitSelector peels a leading selector token off the remainder: a
// digit-like phone number (possibly formatted) or an escalation id written
// as "#id". Other first tokens leave the selector empty and the whole
// remainder as body.
func splitSelector(rest string) (selector, body string) {
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, " ", 2)
	if !isDigitLike(parts[0]) && !strings.HasPrefix(parts[0], "#") {
		return "", rest
	}
	selector = parts[0]
	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	return selector, body
}

// isDigitLike accepts phone-number tokens: digits with optional +, -, (, ).
func isDigitLike(tok string) bool {
	if config.DigitsOnly(tok) == "" {
		return false
	}
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return true
}
