// Package gateway is the dispatcher: it consumes inbound messages from the
// bus, routes admin messages to the command surface and customer messages to
// the responder, and pumps outbound replies back to the channel.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/channels"
	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/handoff"
	"github.com/zapvendas/zapvendas/internal/notify"
	"github.com/zapvendas/zapvendas/internal/responder"
	"github.com/zapvendas/zapvendas/internal/store"
)

// Gateway wires the bus, channel, coordinator and responder together.
type Gateway struct {
	bus       *bus.MessageBus
	channel   channels.Channel
	co        *handoff.Coordinator
	commands  *handoff.Commands
	responder responder.Responder
	store     *store.Store
	notifier  *notify.Notifier
	adminChat string
	history   int
	now       func() time.Time
}

// New creates a Gateway. adminNumber is the operator's phone number;
// historyLimit caps how many past exchanges feed the responder.
func New(
	msgBus *bus.MessageBus,
	channel channels.Channel,
	co *handoff.Coordinator,
	commands *handoff.Commands,
	resp responder.Responder,
	st *store.Store,
	notifier *notify.Notifier,
	adminNumber string,
	historyLimit int,
) *Gateway {
	return &Gateway{
		bus:       msgBus,
		channel:   channel,
		co:        co,
		commands:  commands,
		responder: resp,
		store:     st,
		notifier:  notifier,
		adminChat: config.DigitsOnly(adminNumber),
		history:   historyLimit,
		now:       time.Now,
	}
}

// ChannelSender adapts a channel to the synchronous text-send interface the
// coordinator and notifier expect. Sends bypass the outbound queue so that
// delivery failures surface to the caller.
type ChannelSender struct {
	Channel channels.Channel
}

// SendText sends a plain text message through the channel.
func (s ChannelSender) SendText(ctx context.Context, to, text string) error {
	return s.Channel.Send(ctx, bus.OutboundMessage{
		Channel: s.Channel.Name(),
		ChatID:  to,
		Content: text,
	})
}

// Run starts the dispatch and outbound loops and blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.dispatchLoop(ctx) })
	eg.Go(func() error { return g.outboundLoop(ctx) })
	return eg.Wait()
}

func (g *Gateway) dispatchLoop(ctx context.Context) error {
	slog.Info("dispatcher started", "admin", g.adminChat)
	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		g.handleInbound(ctx, msg)
	}
}

// handleInbound routes one message. Messages are processed in arrival order;
// a customer's follow-up never overtakes the reply to their previous message.
func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if msg.IsGroup {
		slog.Debug("ignoring group message", "chat", msg.ChatID)
		return
	}

	if msg.FromMe || g.co.IsAdmin(msg.SenderID) {
		// Commands only exist inside the admin chat. The operator answering a
		// customer directly from the bot phone must not trip the command
		// surface, or quoted replies would echo back into the customer chat.
		if config.DigitsOnly(msg.ChatID) == g.adminChat {
			g.handleAdmin(ctx, msg)
		}
		return
	}

	g.handleCustomer(ctx, msg)
}

func (g *Gateway) handleAdmin(ctx context.Context, msg bus.InboundMessage) {
	reply, handled := g.commands.Handle(ctx, msg)
	if !handled {
		// The operator talking to someone directly. Not our business.
		return
	}
	if reply == "" {
		return
	}
	g.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	})
}

func (g *Gateway) handleCustomer(ctx context.Context, msg bus.InboundMessage) {
	customer := config.DigitsOnly(msg.SenderID)

	if g.co.Mode(customer) == handoff.ModeHuman {
		slog.Debug("customer under human control, bot silent", "customer", customer)
		return
	}

	name := msg.SenderName
	if name == "" {
		if resolver, ok := g.channel.(channels.ContactResolver); ok {
			name = resolver.Contact(ctx, customer)
		}
	}

	history, err := g.store.History(ctx, customer, g.history)
	if err != nil {
		slog.Warn("load history failed", "customer", customer, "error", err)
	}
	cctx, err := g.store.Context(ctx, customer)
	if err != nil {
		slog.Warn("load customer context failed", "customer", customer, "error", err)
	}

	reply, err := g.responder.Process(ctx, responder.Request{
		Message:      msg.Content,
		CustomerName: name,
		History:      history,
		Context:      cctx,
	})
	if err != nil || reply == nil || reply.Text == "" {
		slog.Error("responder failed", "customer", customer, "error", err)
		reply = responder.Fallback()
	}

	g.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Text,
	})

	g.persist(ctx, customer, name, msg.Content, reply)

	g.notifier.Activity(ctx, name, customer, msg.Content, reply.Text, reply.Sale, reply.SaleAmount)

	if reply.NeedsHuman {
		esc := g.co.RegisterEscalation(g.adminChat, customer, name, msg.Content)
		g.notifier.Escalation(ctx, esc.ID, name, customer, msg.Content)
	}
}

// persist records the exchange, bumps daily metrics and tracks frequent
// questions. Storage failures are logged, never fatal to the reply path.
func (g *Gateway) persist(ctx context.Context, customer, name, message string, reply *responder.Reply) {
	if err := g.store.SaveConversation(ctx, store.Record{
		Customer:     customer,
		CustomerName: name,
		Message:      message,
		Reply:        reply.Text,
		Actor:        store.ActorBot,
		Sale:         reply.Sale,
		SaleAmount:   reply.SaleAmount,
	}); err != nil {
		slog.Warn("save conversation failed", "customer", customer, "error", err)
	}

	day := g.now().Format("2006-01-02")
	if err := g.store.BumpDailyMetrics(ctx, day, reply.Sale, reply.SaleAmount); err != nil {
		slog.Warn("bump metrics failed", "error", err)
	}

	if isQuestionCategory(reply.Category) {
		if err := g.store.RecordQuestion(ctx, message, reply.Category); err != nil {
			slog.Warn("record question failed", "error", err)
		}
	}
}

// isQuestionCategory reports whether a category counts toward the frequent
// questions report. Complaints and small talk do not.
func isQuestionCategory(category string) bool {
	switch category {
	case "preco", "entrega", "pagamento", "produto":
		return true
	}
	return false
}

func (g *Gateway) outboundLoop(ctx context.Context) error {
	for {
		msg, ok := g.bus.ConsumeOutbound(ctx)
		if !ok {
			return nil
		}
		if err := g.channel.Send(ctx, msg); err != nil {
			slog.Warn("outbound send failed, retrying once", "chat", msg.ChatID, "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}

			if err := g.channel.Send(ctx, msg); err != nil {
				slog.Error("outbound send failed permanently", "chat", msg.ChatID, "error", err)
			}
		}
	}
}
