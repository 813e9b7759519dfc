// Package config handles loading and validation of the bot configuration.
// Config comes from a JSON5 file overlaid with ZAPVENDAS_* environment
// variables; secrets are env-only and never written back to disk.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Admin     AdminConfig     `json:"admin"`
	Business  BusinessConfig  `json:"business"`
	Channels  ChannelsConfig  `json:"channels"`
	Responder ResponderConfig `json:"responder"`
	Store     StoreConfig     `json:"store"`
	Reports   ReportsConfig   `json:"reports"`
}

// AdminConfig identifies the human operator who receives alerts and
// issues handoff commands.
type AdminConfig struct {
	// Number is the operator's phone number, digits only (country code included).
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// BusinessConfig describes the business the bot sells for. It feeds the
// responder persona and the admin reports.
type BusinessConfig struct {
	Name      string         `json:"name"`
	OwnerName string         `json:"owner_name"`
	About     string         `json:"about,omitempty"`
	Products  []Product      `json:"products,omitempty"`
	Stands    []Stand        `json:"stands,omitempty"`
	Examples  ExamplesConfig `json:"examples"`
}

// Product is a price-list entry.
type Product struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Note  string  `json:"note,omitempty"`
}

// Stand is a recurring point of sale on a fixed weekday.
type Stand struct {
	Weekday time.Weekday `json:"weekday"`
	Place   string       `json:"place"`
	Start   string       `json:"start"` // "15:00"
	End     string       `json:"end"`   // "20:00"
}

// ExamplesConfig points at a directory of past conversation transcripts
// used as few-shot examples for the responder.
type ExamplesConfig struct {
	Dir   string `json:"dir,omitempty"`
	Watch bool   `json:"watch,omitempty"`
}

// ChannelsConfig holds per-channel settings.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig selects and configures the WhatsApp transport.
type WhatsAppConfig struct {
	// Driver is "whatsmeow" (native, default) or "bridge" (whatsapp-web.js over WS).
	Driver string `json:"driver,omitempty"`
	// SessionDB is the whatsmeow session store path (sqlite3).
	SessionDB string `json:"session_db,omitempty"`
	// BridgeURL is the WebSocket URL of the bridge process (bridge driver only).
	BridgeURL string `json:"bridge_url,omitempty"`
}

// ResponderConfig selects the reply engine.
type ResponderConfig struct {
	// Provider is "openai" or "gemini".
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	APIBase      string  `json:"api_base,omitempty"`
	OpenAIKey    string  `json:"-"`
	GeminiKey    string  `json:"-"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	HistoryLimit int     `json:"history_limit,omitempty"`
}

// StoreConfig locates the conversation database.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// ReportsConfig schedules automatic reports to the admin chat.
type ReportsConfig struct {
	// DailyAt is the local time for the daily report, "HH:MM". Empty disables it.
	DailyAt string `json:"daily_at,omitempty"`
	// Weekly enables a consolidated report on Sunday at DailyAt.
	Weekly bool `json:"weekly,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Business: BusinessConfig{
			Name:      "Pamonha da Rosana",
			OwnerName: "Rosana",
			About:     "Pamonhas artesanais e derivados de milho, feitos no dia.",
			Products: []Product{
				{Name: "Pamonha", Price: 14},
				{Name: "Curau", Price: 12},
				{Name: "Suco de milho", Price: 18},
				{Name: "Bolo de milho", Price: 25},
				{Name: "Pedaço de bolo", Price: 8},
			},
			Stands: []Stand{
				{Weekday: time.Wednesday, Place: "CACI", Start: "15:00", End: "20:00"},
				{Weekday: time.Saturday, Place: "Prefeitura de Valinhos", Start: "08:00", End: "13:00"},
			},
			Examples: ExamplesConfig{Dir: "conversas_antigas", Watch: true},
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Driver:    "whatsmeow",
				SessionDB: "session.db",
			},
		},
		Responder: ResponderConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Temperature:  0.7,
			MaxTokens:    300,
			HistoryLimit: 10,
		},
		Store: StoreConfig{Path: "vendas.db"},
		Reports: ReportsConfig{
			DailyAt: "20:00",
			Weekly:  true,
		},
	}
}
