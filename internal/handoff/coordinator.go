// Package handoff coordinates control of each customer conversation between
// the bot and the human operator: per-customer control mode, pending
// escalations and the routing of admin replies back to the right customer.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/store"
)

var (
	// ErrNoPendingTarget means an admin action could not be matched to a customer.
	ErrNoPendingTarget = errors.New("no pending escalation target")
	// ErrEmptyReply means the admin tried to resolve an escalation with a blank message.
	ErrEmptyReply = errors.New("empty reply text")
)

// Mode is who currently answers a customer.
type Mode int

const (
	// ModeBot means the bot replies automatically (default).
	ModeBot Mode = iota
	// ModeHuman means the operator took over; the bot stays silent.
	ModeHuman
)

func (m Mode) String() string {
	if m == ModeHuman {
		return "human"
	}
	return "bot"
}

// Escalation is a customer waiting for human attention.
type Escalation struct {
	ID        string
	Customer  string // digits-only key
	Name      string
	Message   string
	CreatedAt time.Time
}

// Sender delivers a text message to a chat on the messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Recorder persists conversation records.
type Recorder interface {
	SaveConversation(ctx context.Context, rec store.Record) error
}

// Coordinator owns the handoff state. All state is in-memory and resets on
// restart: outstanding escalations are lost and every customer starts in
// ModeBot again.
type Coordinator struct {
	admin    string // operator number, digits only
	sender   Sender
	recorder Recorder
	now      func() time.Time

	mu          sync.Mutex
	mode        map[string]Mode
	pending     map[string]*Escalation
	lastPending map[string]string // admin chat → customer key
}

// New creates a Coordinator. adminNumber may contain formatting characters.
func New(adminNumber string, sender Sender, recorder Recorder) *Coordinator {
	return &Coordinator{
		admin:       config.DigitsOnly(adminNumber),
		sender:      sender,
		recorder:    recorder,
		now:         time.Now,
		mode:        make(map[string]Mode),
		pending:     make(map[string]*Escalation),
		lastPending: make(map[string]string),
	}
}

// Mode returns the control mode for a customer.
func (c *Coordinator) Mode(customer string) Mode {
	key := config.DigitsOnly(customer)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode[key]
}

// IsAdmin reports whether an identifier belongs to the operator.
func (c *Coordinator) IsAdmin(id string) bool {
	return c.admin != "" && config.DigitsOnly(id) == c.admin
}

// RegisterEscalation inserts or overwrites the pending entry for a customer.
// A second escalation for the same customer replaces the first; earlier
// unresolved text is discarded. Escalation never changes the control mode.
func (c *Coordinator) RegisterEscalation(adminChat, customer, name, message string) *Escalation {
	key := config.DigitsOnly(customer)

	esc := &Escalation{
		ID:        uuid.NewString()[:8],
		Customer:  key,
		Name:      name,
		Message:   message,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = esc
	if adminChat != "" {
		c.lastPending[adminChat] = key
	}
	return esc
}

// Pending returns all pending escalations, oldest first.
func (c *Coordinator) Pending() []*Escalation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Escalation, 0, len(c.pending))
	for _, esc := range c.pending {
		out = append(out, esc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingFor returns the pending escalation for a customer, or nil.
func (c *Coordinator) PendingFor(customer string) *Escalation {
	key := config.DigitsOnly(customer)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key]
}

// Resolve answers a pending escalation. selector is an explicit customer
// number, an escalation id ("#a1b2c3d4" as shown in the alert), or empty to
// fall back to the last escalation notified on adminChat.
// On success the reply is sent to the customer, a human-actor record is
// persisted, the pending entry is removed and the customer flips to ModeHuman.
func (c *Coordinator) Resolve(ctx context.Context, adminChat, selector, reply string) (*Escalation, error) {
	if isBlank(reply) {
		return nil, ErrEmptyReply
	}

	c.mu.Lock()
	key := c.keyForLocked(adminChat, selector)
	esc := c.pending[key]
	c.mu.Unlock()

	if key == "" || esc == nil {
		return nil, ErrNoPendingTarget
	}

	return esc, c.deliver(ctx, adminChat, esc.Customer, esc.Name, esc.Message, reply)
}

// keyForLocked resolves a selector to a customer key: "#id" looks up the
// escalation id, digits are the customer number, empty falls back to the
// last escalation notified on adminChat. Caller holds c.mu.
func (c *Coordinator) keyForLocked(adminChat, selector string) string {
	if id, ok := strings.CutPrefix(selector, "#"); ok {
		for key, esc := range c.pending {
			if esc.ID == id {
				return key
			}
		}
		return ""
	}
	if key := config.DigitsOnly(selector); key != "" {
		return key
	}
	return c.lastPending[adminChat]
}

// quoted-notification phone extraction: templates embed the customer number
// in parentheses, e.g. "Maria (5519987654321)".
var (
	parenNumberRe = regexp.MustCompile(`\((\d{10,13})\)`)
	bareNumberRe  = regexp.MustCompile(`\d{10,13}`)
)

// ResolveQuoted answers via a quoted-message reply, identifying the target
// in priority order: the quoted sender when it is a genuine customer; a
// parenthesized 10-13 digit number in the quoted text; any bare 10-13 digit
// run; the most recent pending escalation.
func (c *Coordinator) ResolveQuoted(ctx context.Context, adminChat string, quoted *bus.QuotedMessage, reply string) (string, error) {
	if isBlank(reply) {
		return "", ErrEmptyReply
	}
	if quoted == nil {
		return "", ErrNoPendingTarget
	}

	target := ""
	sender := config.DigitsOnly(quoted.SenderID)
	switch {
	case !quoted.FromMe && sender != "" && sender != c.admin:
		target = sender
	default:
		if m := parenNumberRe.FindStringSubmatch(quoted.Text); m != nil {
			target = m[1]
		} else if m := bareNumberRe.FindString(quoted.Text); m != "" {
			target = m
		} else if last := c.mostRecentPending(); last != nil {
			target = last.Customer
		}
	}
	if target == "" {
		return "", ErrNoPendingTarget
	}

	name, message := "", ""
	if esc := c.PendingFor(target); esc != nil {
		name, message = esc.Name, esc.Message
	}

	return target, c.deliver(ctx, adminChat, target, name, message, reply)
}

// Dismiss drops a pending escalation without replying. The selector is a
// number or "#id"; empty falls back to the last escalation notified on
// adminChat.
func (c *Coordinator) Dismiss(adminChat, selector string) (*Escalation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.keyForLocked(adminChat, selector)
	esc := c.pending[key]
	if key == "" || esc == nil {
		return nil, ErrNoPendingTarget
	}

	delete(c.pending, key)
	c.forgetLastPendingLocked(key)
	return esc, nil
}

// TakeOver flips a customer to ModeHuman. No pending escalation is required;
// any pending entry is kept until resolved or dismissed. Idempotent.
func (c *Coordinator) TakeOver(customer string) string {
	key := config.DigitsOnly(customer)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode[key] = ModeHuman
	return key
}

// Release returns a customer to ModeBot and drops any pending escalation.
// Idempotent.
func (c *Coordinator) Release(customer string) string {
	key := config.DigitsOnly(customer)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mode, key)
	delete(c.pending, key)
	c.forgetLastPendingLocked(key)
	return key
}

// deliver completes a resolution: send, persist, drop pending, flip mode.
func (c *Coordinator) deliver(ctx context.Context, adminChat, customer, name, message, reply string) error {
	if err := c.sender.SendText(ctx, customer, reply); err != nil {
		return fmt.Errorf("send reply to %s: %w", customer, err)
	}

	rec := store.Record{
		Customer:     customer,
		CustomerName: name,
		Message:      message,
		Reply:        reply,
		Actor:        store.ActorHuman,
		CreatedAt:    c.now(),
	}
	if err := c.recorder.SaveConversation(ctx, rec); err != nil {
		// The customer already got the reply; a persistence failure must not
		// undo the handoff.
		slog.Warn("persist human reply failed", "customer", customer, "error", err)
	}

	c.mu.Lock()
	delete(c.pending, customer)
	c.forgetLastPendingLocked(customer)
	c.mode[customer] = ModeHuman
	c.mu.Unlock()

	return nil
}

func (c *Coordinator) mostRecentPending() *Escalation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest *Escalation
	for _, esc := range c.pending {
		if latest == nil || esc.CreatedAt.After(latest.CreatedAt) {
			latest = esc
		}
	}
	return latest
}

func (c *Coordinator) forgetLastPendingLocked(customer string) {
	for chat, key := range c.lastPending {
		if key == customer {
			delete(c.lastPending, chat)
		}
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
