package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeSender struct {
	to   []string
	text []string
	fail error
}

func (f *fakeSender) SendText(_ context.Context, to, text string) error {
	if f.fail != nil {
		return f.fail
	}
	f.to = append(f.to, to)
	f.text = append(f.text, text)
	return nil
}

func TestActivityText(t *testing.T) {
	text := ActivityText("Ana", "5511999990000", "quanto custa?", "R$ 14,00!", false, 0)

	if !strings.Contains(text, "Ana (5511999990000)") {
		t.Errorf("missing parenthesized number: %q", text)
	}
	if strings.Contains(text, "Possível venda") {
		t.Errorf("unexpected sale banner: %q", text)
	}
}

func TestActivityTextSale(t *testing.T) {
	text := ActivityText("Ana", "5511999990000", "quero 2 pamonhas", "Fechado!", true, 28)
	if !strings.Contains(text, "Possível venda") || !strings.Contains(text, "R$ 28.00") {
		t.Errorf("sale banner missing: %q", text)
	}

	noAmount := ActivityText("Ana", "5511999990000", "quero sim", "Combinado!", true, 0)
	if !strings.Contains(noAmount, "Possível venda") || strings.Contains(noAmount, "R$ 0") {
		t.Errorf("zero amount rendered: %q", noAmount)
	}
}

func TestActivityTextDefaultsName(t *testing.T) {
	text := ActivityText("", "5511999990000", "oi", "olá", false, 0)
	if !strings.Contains(text, "Cliente (5511999990000)") {
		t.Errorf("anonymous name not defaulted: %q", text)
	}
}

func TestEscalationText(t *testing.T) {
	text := EscalationText("a1b2c3d4", "Bruno", "5519987654321", "a pamonha veio fria")

	if !strings.Contains(text, "Bruno (5519987654321)") {
		t.Errorf("missing parenthesized number: %q", text)
	}
	if !strings.Contains(text, "/resp 5519987654321") {
		t.Errorf("missing reply instructions: %q", text)
	}
	if !strings.Contains(text, "#a1b2c3d4") || !strings.Contains(text, "/resp #a1b2c3d4") {
		t.Errorf("missing escalation id selector: %q", text)
	}
}

func TestNotifierTargetsAdminChat(t *testing.T) {
	sender := &fakeSender{}
	n := New("5519988887777@s.whatsapp.net", sender)

	n.Escalation(context.Background(), "a1b2c3d4", "Bruno", "5519987654321", "problema")

	if len(sender.to) != 1 || sender.to[0] != "5519988887777@s.whatsapp.net" {
		t.Fatalf("sends = %v", sender.to)
	}
}

func TestNotifierSendFailureIsSwallowed(t *testing.T) {
	n := New("5519988887777", &fakeSender{fail: errors.New("offline")})

	// Must not panic or propagate.
	n.Activity(context.Background(), "Ana", "5511999990000", "oi", "olá", false, 0)
	n.Report(context.Background(), "relatório")
}

func TestNotifierNoAdminConfigured(t *testing.T) {
	sender := &fakeSender{}
	n := New("", sender)

	n.Report(context.Background(), "relatório")
	if len(sender.to) != 0 {
		t.Errorf("sent without admin chat: %v", sender.to)
	}
}
