package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/handoff"
	"github.com/zapvendas/zapvendas/internal/notify"
	"github.com/zapvendas/zapvendas/internal/responder"
	"github.com/zapvendas/zapvendas/internal/store"
)

const (
	adminNumber = "5519988887777"
	anaNumber   = "5511999990000"
	brunoNumber = "5519987654321"
)

type fakeChannel struct {
	mu   sync.Mutex
	sent []bus.OutboundMessage
	fail error
}

func (f *fakeChannel) Name() string                  { return "whatsapp" }
func (f *fakeChannel) Start(_ context.Context) error { return nil }
func (f *fakeChannel) Stop(_ context.Context) error  { return nil }
func (f *fakeChannel) IsRunning() bool               { return true }
func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

// sentTo returns direct sends addressed to a chat.
func (f *fakeChannel) sentTo(chat string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chat {
			out = append(out, m.Content)
		}
	}
	return out
}

type fakeResponder struct {
	calls int
	reply *responder.Reply
	err   error
}

func (f *fakeResponder) Process(_ context.Context, _ responder.Request) (*responder.Reply, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeResponder) Name() string { return "fake" }

func newTestGateway(t *testing.T, resp *fakeResponder) (*Gateway, *fakeChannel, *store.Store, *handoff.Coordinator) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	ch := &fakeChannel{}
	sender := ChannelSender{Channel: ch}
	co := handoff.New(adminNumber, sender, st)
	commands := handoff.NewCommands(co, nil)
	notifier := notify.New(adminNumber, sender)
	msgBus := bus.New()
	t.Cleanup(msgBus.Close)

	g := New(msgBus, ch, co, commands, resp, st, notifier, adminNumber, 10)
	return g, ch, st, co
}

func consumeOutbound(t *testing.T, g *Gateway) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := g.bus.ConsumeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	return msg
}

func customerMsg(sender, name, content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "whatsapp",
		SenderID:   sender,
		ChatID:     sender,
		SenderName: name,
		Content:    content,
	}
}

func adminMsg(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "whatsapp",
		SenderID: adminNumber,
		ChatID:   adminNumber,
		Content:  content,
	}
}

func TestCustomerQuestionAnsweredByBot(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "A pamonha custa R$ 14,00! 😊", Category: "preco"}}
	g, ch, st, co := newTestGateway(t, resp)
	ctx := context.Background()

	g.handleInbound(ctx, customerMsg(anaNumber, "Ana", "quanto custa a pamonha?"))

	out := consumeOutbound(t, g)
	if out.ChatID != anaNumber || !strings.Contains(out.Content, "R$ 14,00") {
		t.Errorf("outbound = %+v", out)
	}

	if co.PendingFor(anaNumber) != nil {
		t.Error("plain question should not escalate")
	}
	if co.Mode(anaNumber) != handoff.ModeBot {
		t.Error("mode changed without escalation resolution")
	}

	history, err := st.History(ctx, anaNumber, 10)
	if err != nil || len(history) != 1 || history[0].Actor != store.ActorBot {
		t.Errorf("history = %+v, %v", history, err)
	}

	// One activity notification to the admin.
	admin := ch.sentTo(adminNumber)
	if len(admin) != 1 || !strings.Contains(admin[0], "Ana ("+anaNumber+")") {
		t.Errorf("admin notifications = %v", admin)
	}

	qs, err := st.TopQuestions(ctx, 5)
	if err != nil || len(qs) != 1 || qs[0].Question != "quanto custa a pamonha?" {
		t.Errorf("questions = %+v, %v", qs, err)
	}
}

func TestComplaintEscalatesWithoutModeChange(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{
		Text:       "Sinto muito! Vou chamar a Rosana para te atender.",
		NeedsHuman: true,
		Category:   "reclamacao",
	}}
	g, ch, _, co := newTestGateway(t, resp)
	ctx := context.Background()

	g.handleInbound(ctx, customerMsg(brunoNumber, "Bruno", "a pamonha chegou fria"))

	esc := co.PendingFor(brunoNumber)
	if esc == nil {
		t.Fatal("complaint should leave a pending escalation")
	}
	if co.Mode(brunoNumber) != handoff.ModeBot {
		t.Error("escalation must not flip control mode")
	}

	out := consumeOutbound(t, g)
	if out.ChatID != brunoNumber {
		t.Errorf("customer still gets the bot reply, got %+v", out)
	}

	admin := ch.sentTo(adminNumber)
	if len(admin) != 2 {
		t.Fatalf("admin sends = %d, want activity + escalation", len(admin))
	}
	if !strings.Contains(admin[1], "("+brunoNumber+")") {
		t.Errorf("escalation alert missing parenthesized number: %q", admin[1])
	}
	if !strings.Contains(admin[1], "#"+esc.ID) {
		t.Errorf("escalation alert missing id selector: %q", admin[1])
	}
}

func TestAdminResolveTakesOverConversation(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "Vou verificar!", NeedsHuman: true, Category: "reclamacao"}}
	g, ch, _, co := newTestGateway(t, resp)
	ctx := context.Background()

	g.handleInbound(ctx, customerMsg(brunoNumber, "Bruno", "meu pedido não chegou"))
	consumeOutbound(t, g)

	g.handleInbound(ctx, adminMsg("/resp "+brunoNumber+" Oi Bruno, já estou resolvendo!"))

	// The reply went straight to Bruno through the channel.
	toBruno := ch.sentTo(brunoNumber)
	if len(toBruno) != 1 || !strings.Contains(toBruno[0], "já estou resolvendo") {
		t.Fatalf("sends to customer = %v", toBruno)
	}

	// Confirmation back on the admin chat via the outbound queue.
	confirm := consumeOutbound(t, g)
	if confirm.ChatID != adminNumber || !strings.Contains(confirm.Content, "✅") {
		t.Errorf("confirmation = %+v", confirm)
	}

	if co.Mode(brunoNumber) != handoff.ModeHuman {
		t.Error("resolution should hand control to the human")
	}
	if co.PendingFor(brunoNumber) != nil {
		t.Error("pending entry should be cleared")
	}

	// Bruno's next message is ignored while the human is in control.
	before := resp.calls
	g.handleInbound(ctx, customerMsg(brunoNumber, "Bruno", "ok, obrigado"))
	if resp.calls != before {
		t.Error("responder ran while customer under human control")
	}
}

func TestOperatorReplyInCustomerChatStaysQuiet(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "oi"}}
	g, ch, _, co := newTestGateway(t, resp)
	ctx := context.Background()

	// The operator, on the bot phone, answers Ana by quoting her message in
	// Ana's own chat. Nothing may be re-sent and no confirmation may appear
	// in the customer chat.
	msg := bus.InboundMessage{
		Channel:  "whatsapp",
		SenderID: adminNumber,
		ChatID:   anaNumber,
		Content:  "Oi Ana, pode buscar às 18h",
		FromMe:   true,
		Quoted:   &bus.QuotedMessage{SenderID: anaNumber, Text: "que horas posso buscar?"},
	}
	g.handleInbound(ctx, msg)

	if len(ch.sent) != 0 {
		t.Errorf("direct sends leaked: %v", ch.sent)
	}
	outCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if out, ok := g.bus.ConsumeOutbound(outCtx); ok {
		t.Errorf("outbound leaked into chat %s: %q", out.ChatID, out.Content)
	}
	if co.Mode(anaNumber) != handoff.ModeBot {
		t.Error("manual reply outside the admin chat must not flip the mode")
	}
	if resp.calls != 0 {
		t.Error("responder ran on the operator's own message")
	}
}

func TestAdminPlainChatterIgnored(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "oi"}}
	g, ch, _, _ := newTestGateway(t, resp)

	g.handleInbound(context.Background(), adminMsg("lembrar de comprar milho"))

	if resp.calls != 0 {
		t.Error("responder ran on admin message")
	}
	if len(ch.sent) != 0 {
		t.Errorf("unexpected sends: %v", ch.sent)
	}
}

func TestGroupMessagesIgnored(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "oi"}}
	g, _, _, _ := newTestGateway(t, resp)

	msg := customerMsg(anaNumber, "Ana", "bom dia grupo")
	msg.IsGroup = true
	g.handleInbound(context.Background(), msg)

	if resp.calls != 0 {
		t.Error("responder ran on group message")
	}
}

func TestResponderFailureFallsBackAndEscalates(t *testing.T) {
	resp := &fakeResponder{err: errors.New("provider down")}
	g, _, _, co := newTestGateway(t, resp)

	g.handleInbound(context.Background(), customerMsg(anaNumber, "Ana", "oi"))

	out := consumeOutbound(t, g)
	if out.Content != responder.FallbackText {
		t.Errorf("fallback text = %q", out.Content)
	}
	if co.PendingFor(anaNumber) == nil {
		t.Error("fallback reply should escalate")
	}
}

func TestOutboundLoopRetriesOnce(t *testing.T) {
	resp := &fakeResponder{reply: &responder.Reply{Text: "oi"}}
	g, ch, _, _ := newTestGateway(t, resp)

	ch.setFail(errors.New("socket closed"))
	g.bus.PublishOutbound(bus.OutboundMessage{ChatID: anaNumber, Content: "oi"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = g.outboundLoop(ctx)
		close(done)
	}()

	// Let the first attempt fail, then recover before the retry.
	time.Sleep(100 * time.Millisecond)
	ch.setFail(nil)
	time.Sleep(2500 * time.Millisecond)

	cancel()
	<-done

	if got := ch.sentTo(anaNumber); len(got) != 1 {
		t.Errorf("sends after retry = %v", got)
	}
}

func TestIsQuestionCategory(t *testing.T) {
	for _, c := range []string{"preco", "entrega", "pagamento", "produto"} {
		if !isQuestionCategory(c) {
			t.Errorf("%s should count as a question", c)
		}
	}
	for _, c := range []string{"reclamacao", "geral", ""} {
		if isQuestionCategory(c) {
			t.Errorf("%s should not count as a question", c)
		}
	}
}
