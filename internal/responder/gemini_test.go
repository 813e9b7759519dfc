package responder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/zapvendas/zapvendas/internal/config"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default().Responder
	cfg.Provider = "gemini"
	cfg.GeminiKey = "key-test"
	cfg.APIBase = server.URL
	cfg.Model = "gemini-1.5-flash"

	g := NewGemini(cfg, config.Default().Business, testPersona())
	g.retryConfig = RetryConfig{MaxRetries: 0}
	return g
}

func geminiCandidate(text string) string {
	out, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(out)
}

func TestGeminiProcess(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-flash") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "key-test" {
			t.Errorf("missing api key in query")
		}
		io.WriteString(w, geminiCandidate("Tem sim! R$ 14 cada."))
	})

	reply, err := g.Process(context.Background(), Request{Message: "tem pamonha?"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text != "Tem sim! R$ 14 cada." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.Category != "produto" {
		t.Errorf("category = %q, want produto", reply.Category)
	}
}

func TestGeminiCachesRepeatedMessages(t *testing.T) {
	var calls atomic.Int32
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, geminiCandidate("resposta"))
	})

	for i := 0; i < 3; i++ {
		if _, err := g.Process(context.Background(), Request{Message: "Tem pamonha?"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("API calls = %d, want 1 (cache)", got)
	}
}

func TestGeminiQuotaFallsBackToCanned(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	})

	reply, err := g.Process(context.Background(), Request{Message: "bom dia!"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text == "" || reply.Text == FallbackText {
		t.Errorf("greeting should get a canned reply, got %q", reply.Text)
	}

	// Price question while paused: canned price list, no API call needed.
	reply, err = g.Process(context.Background(), Request{Message: "quanto custa?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Text, "R$ 14.00") {
		t.Errorf("canned price reply = %q", reply.Text)
	}

	// Unclassifiable message degrades to the fallback with a human flag.
	reply, err = g.Process(context.Background(), Request{Message: "xyzzy"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != FallbackText || !reply.NeedsHuman {
		t.Errorf("unknown message under quota = %+v", reply)
	}
}

func TestGeminiServerErrorReturnsFallback(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	reply, err := g.Process(context.Background(), Request{Message: "oi"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != FallbackText || !reply.NeedsHuman {
		t.Errorf("reply = %+v, want fallback", reply)
	}
}

func TestBuildSelectsProvider(t *testing.T) {
	cfg := config.Default().Responder
	cfg.OpenAIKey = "sk"
	r, err := New(cfg, config.Default().Business, testPersona())
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != "openai" {
		t.Errorf("provider = %q", r.Name())
	}

	cfg.Provider = "gemini"
	cfg.GeminiKey = "gk"
	r, err = New(cfg, config.Default().Business, testPersona())
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != "gemini" {
		t.Errorf("provider = %q", r.Name())
	}

	cfg.Provider = "gemini"
	cfg.GeminiKey = ""
	if _, err := New(cfg, config.Default().Business, testPersona()); err == nil {
		t.Error("missing key should fail")
	}
}
