// Package responder generates replies to customer messages through an LLM
// provider, with keyword-based sales analysis as a safety net. The contract:
// Process never returns an empty reply text; provider failures degrade to an
// apology that flags the conversation for human attention.
package responder

import (
	"context"

	"github.com/zapvendas/zapvendas/internal/store"
)

// FallbackText is the reply used whenever the provider fails.
const FallbackText = "Desculpe, tive um problema técnico. Vou avisar minha responsável para te atender! 😊"

// Request is one customer message plus its context.
type Request struct {
	Message      string
	CustomerName string
	History      []store.Exchange
	Context      *store.CustomerContext
}

// Reply is the generated answer plus the analysis of the exchange.
type Reply struct {
	Text       string
	Sale       bool
	SaleAmount float64
	NeedsHuman bool
	Category   string
}

// Responder generates a reply for a customer message.
type Responder interface {
	// Process returns a reply. Implementations never return a nil Reply with
	// a nil error, and Reply.Text is never empty.
	Process(ctx context.Context, req Request) (*Reply, error)

	// Name identifies the provider ("openai", "gemini").
	Name() string
}

// Fallback returns the safe reply used when the provider is unavailable.
func Fallback() *Reply {
	return &Reply{Text: FallbackText, NeedsHuman: true, Category: "geral"}
}
