// Package report renders sales reports and schedules their delivery to the
// admin chat.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zapvendas/zapvendas/internal/store"
)

// Service builds reports from the conversation store.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService creates a report service.
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// TodayReport renders the report for the current day. Used by the admin
// !dados command and by the daily scheduler.
func (s *Service) TodayReport(ctx context.Context) (string, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.render(ctx, from, from.AddDate(0, 0, 1), "Relatório do dia")
}

// WeekReport covers the last 7 days.
func (s *Service) WeekReport(ctx context.Context) (string, error) {
	now := s.now()
	return s.render(ctx, now.AddDate(0, 0, -7), now, "Relatório da semana")
}

// MonthReport covers the last 30 days.
func (s *Service) MonthReport(ctx context.Context) (string, error) {
	now := s.now()
	return s.render(ctx, now.AddDate(0, 0, -30), now, "Relatório do mês")
}

func (s *Service) render(ctx context.Context, from, to time.Time, title string) (string, error) {
	data, err := s.store.Report(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("build report: %w", err)
	}
	return Render(data, title), nil
}

// Render formats report data as a WhatsApp-ready message.
func Render(data *store.ReportData, title string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 *%s — %s*\n\n", title, data.To.Format("02/01/2006"))
	fmt.Fprintf(&b, "💬 Conversas: %d\n", data.Conversations)
	fmt.Fprintf(&b, "👥 Clientes únicos: %d\n", data.UniqueCustomers)
	fmt.Fprintf(&b, "💰 Vendas: %d (%.1f%% de conversão)\n", data.Sales, data.ConversionRate())
	fmt.Fprintf(&b, "💵 Faturamento: R$ %.2f", data.Revenue)
	if data.Sales > 0 {
		fmt.Fprintf(&b, " (ticket médio R$ %.2f)", data.AverageTicket())
	}
	b.WriteString("\n")

	if len(data.PeakHours) > 0 {
		b.WriteString("\n⏰ Horários de pico: ")
		for i, h := range data.PeakHours {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%02dh (%d)", h.Hour, h.Count)
		}
		b.WriteString("\n")
	}

	if len(data.TopQuestions) > 0 {
		b.WriteString("\n❓ *Perguntas frequentes:*\n")
		for i, q := range data.TopQuestions {
			fmt.Fprintf(&b, "%d. %s (%dx)\n", i+1, q.Question, q.Hits)
		}
	}

	if data.Conversations == 0 {
		b.WriteString("\nNenhuma conversa no período. 🍃")
	}

	return strings.TrimRight(b.String(), "\n")
}
