package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/store"
)

func trainCmd() *cobra.Command {
	var (
		salesOnly bool
		limit     int
		best      int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Export past conversations as responder training examples",
		Long:  "Exports stored conversations as plain-text transcripts, ready to drop into the examples directory so the responder learns the house tone.",
		Run: func(cmd *cobra.Command, args []string) {
			if best > 0 {
				runBest(best)
				return
			}
			runTrain(salesOnly, limit, output)
		},
	}

	cmd.Flags().BoolVar(&salesOnly, "sales-only", false, "only customers with at least one sale")
	cmd.Flags().IntVar(&limit, "limit", 0, "max customers to export (0 = all)")
	cmd.Flags().IntVar(&best, "best", 0, "instead of exporting, list the N highest-value sales")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// runBest prints the highest-value closed sales, for picking example material.
func runBest(n int) {
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

	recs, err := st.BestConversations(context.Background(), n)
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}

	for i, rec := range recs {
		name := rec.CustomerName
		if name == "" {
			name = "Cliente"
		}
		fmt.Printf("%d. R$ %.2f — %s (%s) em %s\n", i+1, rec.SaleAmount, name, rec.Customer,
			rec.CreatedAt.Format("02/01/2006"))
		fmt.Printf("   Cliente: %s\n   Vendedora: %s\n", rec.Message, rec.Reply)
	}
}

func runTrain(salesOnly bool, limit int, output string) {
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

	text, err := st.ExportTraining(context.Background(), store.ExportOptions{
		SalesOnly: salesOnly,
		Limit:     limit,
	})
	if err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}

	if output == "" {
		fmt.Println(text)
		return
	}

	if err := os.WriteFile(output, []byte(text), 0644); err != nil {
		slog.Error("write export failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Exportado para %s\n", output)
}
