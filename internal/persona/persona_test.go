package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zapvendas/zapvendas/internal/config"
)

func testBusiness() config.BusinessConfig {
	return config.Default().Business
}

func TestSystemPromptHasPricesAndRules(t *testing.T) {
	p := New(testBusiness(), nil)

	prompt := p.SystemPrompt()
	if !strings.Contains(prompt, "Pamonha: R$ 14.00") {
		t.Errorf("prompt missing price list:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Rosana") {
		t.Error("prompt missing owner name")
	}
	if !strings.Contains(prompt, "Nunca diga que você é um robô") {
		t.Error("prompt missing persona rules")
	}
}

func TestSystemPromptStandToday(t *testing.T) {
	p := New(testBusiness(), nil)
	// 2026-08-26 is a Wednesday.
	p.now = func() time.Time { return time.Date(2026, 8, 26, 16, 0, 0, 0, time.UTC) }

	prompt := p.SystemPrompt()
	if !strings.Contains(prompt, "HOJE tem barraca: CACI") {
		t.Errorf("wednesday prompt should announce today's stand:\n%s", prompt)
	}
}

func TestSystemPromptNextStand(t *testing.T) {
	p := New(testBusiness(), nil)
	// 2026-08-28 is a Friday; next stand is Saturday.
	p.now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }

	prompt := p.SystemPrompt()
	if !strings.Contains(prompt, "Hoje não tem barraca") {
		t.Errorf("friday prompt should say no stand today:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Prefeitura de Valinhos") {
		t.Errorf("friday prompt should point at saturday stand:\n%s", prompt)
	}
	if !strings.Contains(prompt, "amanhã") {
		t.Errorf("saturday is tomorrow from friday:\n%s", prompt)
	}
}

func TestLoadExamplesSeedsMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conversas")

	ex, err := LoadExamples(dir)
	if err != nil {
		t.Fatalf("LoadExamples: %v", err)
	}
	if !strings.Contains(ex.Text(), "pamonha") {
		t.Error("seeded example missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "exemplo.txt")); err != nil {
		t.Errorf("seed file not created: %v", err)
	}
}

func TestLoadExamplesReadsTxtOnly(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Cliente: oi\n"), 0644)
	os.WriteFile(filepath.Join(dir, "notas.md"), []byte("ignorar\n"), 0644)

	ex, err := LoadExamples(dir)
	if err != nil {
		t.Fatalf("LoadExamples: %v", err)
	}
	if !strings.Contains(ex.Text(), "Cliente: oi") {
		t.Error("txt example missing")
	}
	if strings.Contains(ex.Text(), "ignorar") {
		t.Error("non-txt file should be skipped")
	}
}

func TestExamplesInPrompt(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "venda.txt"), []byte("Cliente: tem curau?\nVendedora: tem sim!\n"), 0644)

	ex, err := LoadExamples(dir)
	if err != nil {
		t.Fatal(err)
	}
	p := New(testBusiness(), ex)
	if !strings.Contains(p.SystemPrompt(), "tem curau?") {
		t.Error("prompt should embed example transcripts")
	}
}
