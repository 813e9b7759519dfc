package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/persona"
)

const (
	geminiCacheTTL   = time.Hour
	geminiCacheMax   = 200
	geminiQuotaPause = 10 * time.Minute
)

// Gemini answers via the Gemini generateContent REST API. The free tier has
// a tight quota, so identical messages are served from a short-lived cache
// and quota exhaustion degrades to canned replies instead of silence.
// Classification is keyword-only; no second model call is made.
type Gemini struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	maxTokens   int
	persona     *persona.Persona
	business    config.BusinessConfig
	client      *http.Client
	retryConfig RetryConfig

	mu         sync.Mutex
	cache      map[string]geminiCacheEntry
	quotaUntil time.Time
}

type geminiCacheEntry struct {
	text string
	at   time.Time
}

// NewGemini builds the Gemini responder from config.
func NewGemini(cfg config.ResponderConfig, business config.BusinessConfig, p *persona.Persona) *Gemini {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://generativelanguage.googleapis.com"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt") {
		model = "gemini-1.5-flash"
	}

	return &Gemini{
		apiKey:      cfg.GeminiKey,
		apiBase:     apiBase,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		persona:     p,
		business:    business,
		client:      &http.Client{Timeout: 60 * time.Second},
		retryConfig: RetryConfig{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		cache:       make(map[string]geminiCacheEntry),
	}
}

func (g *Gemini) Name() string { return "gemini" }

// Process generates the reply, serving repeats from cache and canned
// replies while the quota is exhausted.
func (g *Gemini) Process(ctx context.Context, req Request) (*Reply, error) {
	key := strings.ToLower(strings.TrimSpace(req.Message))

	if text, ok := g.cached(key); ok {
		return g.withAnalysis(req.Message, text), nil
	}

	if g.quotaExhausted() {
		return g.canned(req.Message), nil
	}

	text, err := g.generate(ctx, req)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusTooManyRequests {
			g.pauseQuota()
			slog.Warn("gemini quota exhausted, switching to canned replies")
			return g.canned(req.Message), nil
		}
		slog.Warn("gemini generate failed", "error", err)
		return Fallback(), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback(), nil
	}

	g.store(key, text)
	return g.withAnalysis(req.Message, text), nil
}

func (g *Gemini) withAnalysis(message, text string) *Reply {
	a := Analyze(message, text)
	return &Reply{
		Text:       text,
		Sale:       a.Sale,
		SaleAmount: a.SaleAmount,
		NeedsHuman: a.NeedsHuman,
		Category:   a.Category,
	}
}

// canned picks a safe static reply by message class. Unknown messages get
// the fallback and a human flag, so nobody is left talking to a wall.
func (g *Gemini) canned(message string) *Reply {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "e ai"}):
		owner := g.business.OwnerName
		if owner == "" {
			owner = "a gente"
		}
		text := fmt.Sprintf("Oi! Aqui é o atendimento de %s 😊 Me conta o que você precisa!", owner)
		return g.withAnalysis(message, text)

	case containsAny(msg, categoryWords["preco"]):
		var b strings.Builder
		b.WriteString("Nossos preços:\n")
		for _, prod := range g.business.Products {
			fmt.Fprintf(&b, "• %s: R$ %.2f\n", prod.Name, prod.Price)
		}
		return g.withAnalysis(message, strings.TrimRight(b.String(), "\n"))

	case containsAny(msg, []string{"sim", "pode ser", "fechado", "ok", "beleza", "combinado"}):
		return g.withAnalysis(message, "Fechado! 🎉 Qualquer coisa é só chamar.")

	default:
		return Fallback()
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) generate(ctx context.Context, req Request) (string, error) {
	system := g.persona.SystemPrompt()
	if note := contextNote(req); note != "" {
		system += "\n" + note
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
	}
	for _, ex := range req.History {
		body.Contents = append(body.Contents,
			geminiContent{Role: "user", Parts: []geminiPart{{Text: ex.Message}}},
			geminiContent{Role: "model", Parts: []geminiPart{{Text: ex.Reply}}},
		)
	}
	body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})
	body.GenerationConfig.Temperature = g.temperature
	body.GenerationConfig.MaxOutputTokens = g.maxTokens

	return RetryDo(ctx, g.retryConfig, func() (string, error) {
		respBody, err := g.doRequest(ctx, body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var resp geminiResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return "", fmt.Errorf("gemini: decode response: %w", err)
		}
		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini: empty candidates")
		}
		return resp.Candidates[0].Content.Parts[0].Text, nil
	})
}

func (g *Gemini) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.apiBase, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return resp.Body, nil
}

func (g *Gemini) cached(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.cache[key]
	if !ok || time.Since(entry.at) > geminiCacheTTL {
		delete(g.cache, key)
		return "", false
	}
	return entry.text, true
}

func (g *Gemini) store(key, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.cache) >= geminiCacheMax {
		// Drop the oldest entry.
		oldestKey := ""
		var oldest time.Time
		for k, e := range g.cache {
			if oldestKey == "" || e.at.Before(oldest) {
				oldestKey, oldest = k, e.at
			}
		}
		delete(g.cache, oldestKey)
	}
	g.cache[key] = geminiCacheEntry{text: text, at: time.Now()}
}

func (g *Gemini) quotaExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.quotaUntil)
}

func (g *Gemini) pauseQuota() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotaUntil = time.Now().Add(geminiQuotaPause)
}
