package responder

import (
	"fmt"

	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/persona"
)

// New selects and builds the configured provider. The choice is made once
// at startup; there is no runtime switching.
func New(cfg config.ResponderConfig, business config.BusinessConfig, p *persona.Persona) (Responder, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider selected but ZAPVENDAS_OPENAI_API_KEY is not set")
		}
		return NewOpenAI(cfg, p), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("gemini provider selected but ZAPVENDAS_GEMINI_API_KEY is not set")
		}
		return NewGemini(cfg, business, p), nil
	default:
		return nil, fmt.Errorf("unknown responder provider %q", cfg.Provider)
	}
}
