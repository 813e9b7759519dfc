package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ZAPVENDAS_OPENAI_API_KEY", &c.Responder.OpenAIKey)
	envStr("ZAPVENDAS_GEMINI_API_KEY", &c.Responder.GeminiKey)
	envStr("ZAPVENDAS_PROVIDER", &c.Responder.Provider)
	envStr("ZAPVENDAS_MODEL", &c.Responder.Model)

	envStr("ZAPVENDAS_ADMIN_NUMBER", &c.Admin.Number)
	envStr("ZAPVENDAS_ADMIN_NAME", &c.Admin.Name)

	envStr("ZAPVENDAS_DB_PATH", &c.Store.Path)
	envStr("ZAPVENDAS_SESSION_DB", &c.Channels.WhatsApp.SessionDB)
	envStr("ZAPVENDAS_WHATSAPP_DRIVER", &c.Channels.WhatsApp.Driver)
	envStr("ZAPVENDAS_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)

	envStr("ZAPVENDAS_EXAMPLES_DIR", &c.Business.Examples.Dir)
	envStr("ZAPVENDAS_REPORT_DAILY_AT", &c.Reports.DailyAt)

	// Original env names, kept so an existing deployment migrates without edits.
	envStr("OPENAI_API_KEY", &c.Responder.OpenAIKey)
	envStr("GEMINI_API_KEY", &c.Responder.GeminiKey)
	envStr("NUMERO_ROSANA", &c.Admin.Number)
}

// Validate checks the parts of the config that cannot have defaults.
func (c *Config) Validate() error {
	c.Admin.Number = DigitsOnly(c.Admin.Number)

	switch c.Responder.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown responder provider %q", c.Responder.Provider)
	}

	switch c.Channels.WhatsApp.Driver {
	case "", "whatsmeow":
	case "bridge":
		if c.Channels.WhatsApp.BridgeURL == "" {
			return fmt.Errorf("whatsapp bridge driver requires bridge_url")
		}
	default:
		return fmt.Errorf("unknown whatsapp driver %q", c.Channels.WhatsApp.Driver)
	}

	return nil
}

// Save writes the config to a JSON file. Secret fields carry `json:"-"`
// so keys never persist to disk.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DigitsOnly strips everything but decimal digits from a phone number.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
