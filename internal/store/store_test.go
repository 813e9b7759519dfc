package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, msg := range []string{"oi", "quanto custa a pamonha?", "quero duas"} {
		err := s.SaveConversation(ctx, Record{
			Customer:     "5511999990000",
			CustomerName: "Maria",
			Message:      msg,
			Reply:        "resposta " + msg,
			Actor:        ActorBot,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}
	}

	hist, err := s.History(ctx, "5511999990000", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("len(hist) = %d, want 2", len(hist))
	}
	// Oldest first within the window: the two most recent messages.
	if hist[0].Message != "quanto custa a pamonha?" || hist[1].Message != "quero duas" {
		t.Errorf("unexpected order: %q, %q", hist[0].Message, hist[1].Message)
	}
}

func TestHistoryUnknownCustomer(t *testing.T) {
	s := openTestStore(t)

	hist, err := s.History(context.Background(), "0000000000", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("expected empty history, got %d", len(hist))
	}
}

func TestCustomerContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cc, err := s.Context(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if cc.Messages != 0 || cc.Recurring {
		t.Errorf("fresh customer context not zero: %+v", cc)
	}

	for i := 0; i < 3; i++ {
		err := s.SaveConversation(ctx, Record{
			Customer:   "5511999990000",
			Message:    "quero uma pamonha",
			Reply:      "fechado!",
			Sale:       true,
			SaleAmount: 14,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	cc, err = s.Context(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if cc.Messages != 3 || cc.Purchases != 3 {
		t.Errorf("messages=%d purchases=%d, want 3/3", cc.Messages, cc.Purchases)
	}
	if cc.TotalSpent != 42 {
		t.Errorf("total spent = %v, want 42", cc.TotalSpent)
	}
	if !cc.Recurring {
		t.Error("customer with 3 purchases should be recurring")
	}
}

func TestDailyMetricsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day := "2026-08-29"
	if err := s.BumpDailyMetrics(ctx, day, false, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.BumpDailyMetrics(ctx, day, true, 28); err != nil {
		t.Fatal(err)
	}

	var conversations, sales int
	var revenue float64
	row := s.db.QueryRow("SELECT conversations, sales, revenue FROM daily_metrics WHERE day = ?", day)
	if err := row.Scan(&conversations, &sales, &revenue); err != nil {
		t.Fatalf("scan metrics: %v", err)
	}
	if conversations != 2 || sales != 1 || revenue != 28 {
		t.Errorf("metrics = %d/%d/%v, want 2/1/28", conversations, sales, revenue)
	}
}

func TestRecordQuestionAndTop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordQuestion(ctx, "quanto custa a pamonha?", "preco"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordQuestion(ctx, "voces entregam?", "entrega"); err != nil {
		t.Fatal(err)
	}

	top, err := s.TopQuestions(ctx, 5)
	if err != nil {
		t.Fatalf("TopQuestions: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].Question != "quanto custa a pamonha?" || top[0].Hits != 3 {
		t.Errorf("top question = %+v", top[0])
	}
}

func TestReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{Customer: "111", Message: "oi", Reply: "olá!", CreatedAt: base},
		{Customer: "111", Message: "quero 2", Reply: "fechado", Sale: true, SaleAmount: 28, CreatedAt: base.Add(time.Minute)},
		{Customer: "222", Message: "tem curau?", Reply: "tem sim", CreatedAt: base.Add(time.Hour)},
		// Outside the window, must not count.
		{Customer: "333", Message: "antigo", Reply: "ok", Sale: true, SaleAmount: 99, CreatedAt: base.AddDate(0, 0, -3)},
	}
	for _, rec := range records {
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	rep, err := s.Report(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Conversations != 3 || rep.Sales != 1 || rep.Revenue != 28 {
		t.Errorf("report = %d conv, %d sales, %v revenue", rep.Conversations, rep.Sales, rep.Revenue)
	}
	if rep.UniqueCustomers != 2 {
		t.Errorf("unique customers = %d, want 2", rep.UniqueCustomers)
	}
	if got := rep.ConversionRate(); got < 33.3 || got > 33.4 {
		t.Errorf("conversion rate = %v", got)
	}
	if rep.AverageTicket() != 28 {
		t.Errorf("average ticket = %v, want 28", rep.AverageTicket())
	}
	if len(rep.PeakHours) == 0 || rep.PeakHours[0].Hour != 12 || rep.PeakHours[0].Count != 2 {
		t.Errorf("peak hours = %+v", rep.PeakHours)
	}
}

func TestBestConversations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{Customer: "111", CustomerName: "Maria", Message: "quero 3", Reply: "fechado", Sale: true, SaleAmount: 42},
		{Customer: "222", Message: "só olhando", Reply: "fique à vontade"},
		{Customer: "333", CustomerName: "Bia", Message: "um bolo", Reply: "fechado", Sale: true, SaleAmount: 25},
	}
	for _, rec := range recs {
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	best, err := s.BestConversations(ctx, 5)
	if err != nil {
		t.Fatalf("BestConversations: %v", err)
	}
	if len(best) != 2 {
		t.Fatalf("len(best) = %d, want 2", len(best))
	}
	if best[0].SaleAmount != 42 || best[1].SaleAmount != 25 {
		t.Errorf("order = %v, %v", best[0].SaleAmount, best[1].SaleAmount)
	}
}

func TestExportTraining(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{Customer: "111", CustomerName: "Maria", Message: "quero pamonha", Reply: "fechado", Sale: true, SaleAmount: 14, CreatedAt: base},
		{Customer: "222", CustomerName: "João", Message: "só olhando", Reply: "fique à vontade", CreatedAt: base.Add(time.Minute)},
	}
	for _, rec := range recs {
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	out, err := s.ExportTraining(ctx, ExportOptions{})
	if err != nil {
		t.Fatalf("ExportTraining: %v", err)
	}
	if !strings.Contains(out, "Maria") || !strings.Contains(out, "João") {
		t.Error("export missing customers")
	}
	if !strings.Contains(out, "[venda fechada]") {
		t.Error("export missing sale marker")
	}

	salesOnly, err := s.ExportTraining(ctx, ExportOptions{SalesOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(salesOnly, "João") {
		t.Error("sales-only export should skip customers without sales")
	}
}
