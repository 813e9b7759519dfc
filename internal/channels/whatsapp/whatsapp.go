// Package whatsapp implements the native WhatsApp channel over whatsmeow.
// First run shows a QR code in the terminal for pairing; the session is
// persisted in a local sqlite database and survives restarts.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/channels"
	"github.com/zapvendas/zapvendas/internal/config"
)

// Channel is the whatsmeow-backed WhatsApp transport.
type Channel struct {
	*channels.BaseChannel
	cfg       config.WhatsAppConfig
	container *sqlstore.Container
	client    *whatsmeow.Client
}

// New creates the channel. The connection happens in Start.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) *Channel {
	if cfg.SessionDB == "" {
		cfg.SessionDB = "session.db"
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus),
		cfg:         cfg,
	}
}

// Start opens the session store and connects. If no session exists yet a QR
// code is printed for pairing. Initialization failure here is fatal to the
// process; it is the only unrecoverable startup error.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "session_db", c.cfg.SessionDB)

	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+c.cfg.SessionDB+"?_foreign_keys=on", dbLog)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	c.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}

	c.client = whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "ERROR", true))
	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		// Fresh session: pair via QR. GetQRChannel must be called before Connect.
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					fmt.Println("Escaneie o QR code no WhatsApp (Aparelhos conectados):")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				case "success":
					slog.Info("whatsapp paired")
				default:
					slog.Debug("qr event", "event", evt.Event)
				}
			}
		}()
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
	}

	c.SetRunning(true)
	return nil
}

// Stop disconnects the client.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.client != nil {
		c.client.Disconnect()
	}
	c.SetRunning(false)
	return nil
}

// Send delivers a text message. ChatID is a phone number, digits only or
// formatted; it is normalized to a user JID.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("whatsapp not connected")
	}

	jid := types.NewJID(config.DigitsOnly(msg.ChatID), types.DefaultUserServer)

	// Typing indicator, best effort.
	_ = c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)

	_, err := c.client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(msg.Content),
	})
	if err != nil {
		return fmt.Errorf("send whatsapp message to %s: %w", jid.User, err)
	}
	return nil
}

// Contact resolves a display name from the contact store.
func (c *Channel) Contact(ctx context.Context, id string) string {
	if c.client == nil {
		return ""
	}
	jid := types.NewJID(config.DigitsOnly(id), types.DefaultUserServer)
	info, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil || !info.Found {
		return ""
	}
	if info.FullName != "" {
		return info.FullName
	}
	return info.PushName
}

func (c *Channel) handleEvent(evt interface{}) {
	v, ok := evt.(*events.Message)
	if !ok {
		return
	}

	text := extractText(v.Message)
	if text == "" {
		return
	}

	msg := bus.InboundMessage{
		SenderID:   v.Info.Sender.User,
		ChatID:     v.Info.Chat.User,
		SenderName: v.Info.PushName,
		Content:    text,
		FromMe:     v.Info.IsFromMe,
		IsGroup:    v.Info.IsGroup,
		Quoted:     c.extractQuoted(v.Message),
		Metadata:   map[string]string{"message_id": v.Info.ID},
	}

	slog.Debug("whatsapp message received",
		"sender", msg.SenderID,
		"from_me", msg.FromMe,
		"preview", channels.Truncate(text, 50),
	)

	c.HandleMessage(msg)
}

// extractText pulls the text body out of the supported message shapes.
func extractText(m *waProto.Message) string {
	if m == nil {
		return ""
	}
	if t := m.GetConversation(); t != "" {
		return t
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// extractQuoted maps the reply context of an extended text message, so the
// dispatcher can route admin quoted-replies back to the right customer.
func (c *Channel) extractQuoted(m *waProto.Message) *bus.QuotedMessage {
	ext := m.GetExtendedTextMessage()
	if ext == nil {
		return nil
	}
	ci := ext.GetContextInfo()
	if ci == nil || ci.GetQuotedMessage() == nil {
		return nil
	}

	participant := config.DigitsOnly(ci.GetParticipant())
	fromMe := false
	if c.client != nil && c.client.Store.ID != nil {
		fromMe = participant == config.DigitsOnly(c.client.Store.ID.User)
	}

	return &bus.QuotedMessage{
		SenderID: participant,
		FromMe:   fromMe,
		Text:     extractText(ci.GetQuotedMessage()),
	}
}
