package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/zapvendas/zapvendas/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-time setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfgPath := resolveConfigPath()
	cfg := config.Default()

	// Re-running the wizard edits the existing config instead of resetting it.
	if existing, err := config.Load(cfgPath); err == nil {
		cfg = existing
	}

	adminNumber := cfg.Admin.Number
	adminName := cfg.Admin.Name
	businessName := cfg.Business.Name
	ownerName := cfg.Business.OwnerName
	provider := cfg.Responder.Provider
	driver := cfg.Channels.WhatsApp.Driver
	dailyAt := cfg.Reports.DailyAt
	confirm := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Número do WhatsApp da responsável (com DDD e país)").
				Placeholder("5519988887777").
				Value(&adminNumber).
				Validate(func(v string) error {
					if len(config.DigitsOnly(v)) < 10 {
						return fmt.Errorf("número inválido, use só dígitos com código do país")
					}
					return nil
				}),
			huh.NewInput().
				Title("Nome da responsável").
				Placeholder("Rosana").
				Value(&adminName),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Nome do negócio").
				Value(&businessName),
			huh.NewInput().
				Title("Nome de quem aparece nas respostas").
				Value(&ownerName),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provedor de IA").
				Options(
					huh.NewOption("OpenAI (gpt-4o-mini)", "openai"),
					huh.NewOption("Google Gemini (grátis até certo volume)", "gemini"),
				).
				Value(&provider),
			huh.NewSelect[string]().
				Title("Conexão com o WhatsApp").
				Options(
					huh.NewOption("Nativa (QR code no terminal)", "whatsmeow"),
					huh.NewOption("Bridge whatsapp-web.js (WebSocket)", "bridge"),
				).
				Value(&driver),
			huh.NewInput().
				Title("Horário do relatório diário (HH:MM, vazio desliga)").
				Value(&dailyAt),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Salvar em %s?", cfgPath)).
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		slog.Error("onboarding aborted", "error", err)
		os.Exit(1)
	}
	if !confirm {
		fmt.Println("Nada salvo.")
		return
	}

	cfg.Admin.Number = config.DigitsOnly(adminNumber)
	cfg.Admin.Name = adminName
	cfg.Business.Name = businessName
	cfg.Business.OwnerName = ownerName
	cfg.Responder.Provider = provider
	if provider == "gemini" && cfg.Responder.Model == "gpt-4o-mini" {
		cfg.Responder.Model = "gemini-1.5-flash"
	}
	cfg.Channels.WhatsApp.Driver = driver
	cfg.Reports.DailyAt = dailyAt

	if err := config.Save(cfgPath, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Configuração salva em %s\n\n", cfgPath)
	fmt.Println("Falta só a chave do provedor de IA. Exporte antes de rodar:")
	switch provider {
	case "gemini":
		fmt.Println("  export ZAPVENDAS_GEMINI_API_KEY=...")
	default:
		fmt.Println("  export ZAPVENDAS_OPENAI_API_KEY=...")
	}
	fmt.Println()
	fmt.Println("Depois é só rodar:  ./zapvendas")
}
