package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/report"
	"github.com/zapvendas/zapvendas/internal/store"
)

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "report [daily|weekly|monthly]",
		Short:     "Print a sales report to stdout",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"daily", "weekly", "monthly"},
		Run: func(cmd *cobra.Command, args []string) {
			period := "daily"
			if len(args) > 0 {
				period = args[0]
			}
			runReport(period)
		},
	}
}

func runReport(period string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := report.NewService(st)
	ctx := context.Background()

	var text string
	switch period {
	case "daily":
		text, err = svc.TodayReport(ctx)
	case "weekly":
		text, err = svc.WeekReport(ctx)
	case "monthly":
		text, err = svc.MonthReport(ctx)
	default:
		slog.Error("unknown report period", "period", period)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("report failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(text)
}
