package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/persona"
)

// OpenAI answers via an OpenAI-compatible chat completions API. Besides the
// reply itself it runs a second, cheap JSON-mode call that classifies the
// exchange (sale, value, needs-human, category); keyword analysis covers for
// that call when it fails.
type OpenAI struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	maxTokens   int
	persona     *persona.Persona
	client      *http.Client
	retryConfig RetryConfig
}

// NewOpenAI builds the OpenAI responder from config.
func NewOpenAI(cfg config.ResponderConfig, p *persona.Persona) *OpenAI {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAI{
		apiKey:      cfg.OpenAIKey,
		apiBase:     apiBase,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		persona:     p,
		client:      &http.Client{Timeout: 60 * time.Second},
		retryConfig: DefaultRetryConfig(),
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Process generates the reply and the exchange analysis.
func (o *OpenAI) Process(ctx context.Context, req Request) (*Reply, error) {
	text, err := o.chat(ctx, o.buildMessages(req), o.temperature, o.maxTokens, false)
	if err != nil {
		slog.Warn("openai chat failed", "error", err)
		return Fallback(), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback(), nil
	}

	reply := &Reply{Text: text}
	o.applyAnalysis(ctx, req.Message, text, reply)
	return reply, nil
}

func (o *OpenAI) buildMessages(req Request) []chatMessage {
	msgs := []chatMessage{{Role: "system", Content: o.persona.SystemPrompt()}}

	if note := contextNote(req); note != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: note})
	}

	for _, ex := range req.History {
		msgs = append(msgs, chatMessage{Role: "user", Content: ex.Message})
		msgs = append(msgs, chatMessage{Role: "assistant", Content: ex.Reply})
	}

	content := req.Message
	if req.CustomerName != "" {
		content = fmt.Sprintf("[%s]: %s", req.CustomerName, req.Message)
	}
	return append(msgs, chatMessage{Role: "user", Content: content})
}

// applyAnalysis fills the sale/escalation fields, preferring the JSON-mode
// classification and degrading to keywords.
func (o *OpenAI) applyAnalysis(ctx context.Context, message, replyText string, reply *Reply) {
	parsed, err := o.classify(ctx, message, replyText)
	if err != nil {
		slog.Debug("openai analysis failed, using keywords", "error", err)
		a := Analyze(message, replyText)
		reply.Sale = a.Sale
		reply.SaleAmount = a.SaleAmount
		reply.NeedsHuman = a.NeedsHuman
		reply.Category = a.Category
		return
	}

	reply.Sale = parsed.Venda
	reply.SaleAmount = parsed.Valor
	reply.NeedsHuman = parsed.PrecisaHumano
	reply.Category = parsed.Categoria
	if reply.Category == "" {
		reply.Category = "geral"
	}
}

const classifyPrompt = `Você analisa conversas de venda por WhatsApp. Responda SOMENTE um JSON:
{"venda": true/false, "valor": número (0 se não houver), "precisa_humano": true/false, "categoria": "preco"|"entrega"|"pagamento"|"produto"|"reclamacao"|"geral"}
"venda" é true quando o cliente fechou ou confirmou um pedido nesta mensagem.
"precisa_humano" é true para reclamações, pedidos complexos ou quando o cliente pede uma pessoa.`

type classification struct {
	Venda         bool    `json:"venda"`
	Valor         float64 `json:"valor"`
	PrecisaHumano bool    `json:"precisa_humano"`
	Categoria     string  `json:"categoria"`
}

func (o *OpenAI) classify(ctx context.Context, message, replyText string) (*classification, error) {
	msgs := []chatMessage{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: fmt.Sprintf("Cliente: %s\nVendedora: %s", message, replyText)},
	}

	out, err := o.chat(ctx, msgs, 0, 120, true)
	if err != nil {
		return nil, err
	}

	var parsed classification
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode analysis: %w", err)
	}
	return &parsed, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) chat(ctx context.Context, msgs []chatMessage, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	body := map[string]interface{}{
		"model":    o.model,
		"messages": msgs,
	}
	if temperature > 0 {
		body["temperature"] = temperature
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if jsonMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	return RetryDo(ctx, o.retryConfig, func() (string, error) {
		respBody, err := o.doRequest(ctx, body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var resp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return "", fmt.Errorf("openai: decode response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai: empty choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (o *OpenAI) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
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

// contextNote summarizes the customer's history for the prompt.
func contextNote(req Request) string {
	cc := req.Context
	if cc == nil || cc.Messages == 0 {
		return ""
	}

	var b strings.Builder
	name := req.CustomerName
	if name == "" {
		name = "Este cliente"
	}
	fmt.Fprintf(&b, "%s já conversou %d vezes com o negócio", name, cc.Messages)
	if cc.Purchases > 0 {
		fmt.Fprintf(&b, " e comprou %d vezes (R$ %.2f no total)", cc.Purchases, cc.TotalSpent)
	}
	b.WriteString(".")
	if cc.Recurring {
		b.WriteString(" Cliente recorrente: trate com familiaridade, sem se apresentar de novo.")
	}
	return b.String()
}
