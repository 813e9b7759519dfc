// Package bridge implements the WhatsApp channel over a WebSocket bridge.
// The bridge (a whatsapp-web.js process) handles the actual WhatsApp
// protocol; this channel just sends/receives JSON messages over WS. It
// exists for deployments that already run the browser-based stack.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/channels"
	"github.com/zapvendas/zapvendas/internal/config"
)

// Channel connects to the bridge via WebSocket.
type Channel struct {
	*channels.BaseChannel
	cfg    config.WhatsAppConfig
	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge channel from config.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus),
		cfg:         cfg,
	}, nil
}

// Start connects to the bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp bridge channel", "bridge_url", c.cfg.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Don't fail hard, the reconnect loop will keep trying.
		slog.Warn("initial bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp bridge channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("bridge not connected")
	}

	payload := map[string]interface{}{
		"type":    "message",
		"to":      config.DigitsOnly(msg.ChatID),
		"content": msg.Content,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bridge message: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send bridge message: %w", err)
	}
	return nil
}

func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

// listenLoop reads messages from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()

			continue
		}

		var payload bridgeMessage
		if err := json.Unmarshal(message, &payload); err != nil {
			slog.Warn("invalid bridge message JSON", "error", err)
			continue
		}

		if payload.Type == "message" {
			c.handleIncoming(&payload)
		}
	}
}

// bridgeMessage is the wire format of the whatsapp-web.js bridge.
type bridgeMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	FromMe   bool   `json:"from_me"`
	Chat     string `json:"chat"`
	Content  string `json:"content"`
	Quoted   *struct {
		From   string `json:"from"`
		FromMe bool   `json:"from_me"`
		Text   string `json:"text"`
	} `json:"quoted"`
}

func (c *Channel) handleIncoming(payload *bridgeMessage) {
	if payload.From == "" || payload.Content == "" {
		return
	}

	chatID := payload.Chat
	if chatID == "" {
		chatID = payload.From
	}

	msg := bus.InboundMessage{
		SenderID:   config.DigitsOnly(payload.From),
		ChatID:     config.DigitsOnly(chatID),
		SenderName: payload.FromName,
		Content:    payload.Content,
		FromMe:     payload.FromMe,
		// WhatsApp group chats end in "@g.us".
		IsGroup:  strings.HasSuffix(chatID, "@g.us"),
		Metadata: map[string]string{"message_id": payload.ID},
	}
	if payload.Quoted != nil {
		msg.Quoted = &bus.QuotedMessage{
			SenderID: config.DigitsOnly(payload.Quoted.From),
			FromMe:   payload.Quoted.FromMe,
			Text:     payload.Quoted.Text,
		}
	}

	slog.Debug("bridge message received",
		"sender", msg.SenderID,
		"preview", channels.Truncate(msg.Content, 50),
	)

	c.HandleMessage(msg)
}
