package store

import (
	"context"
	"fmt"
	"time"
)

// QuestionCount is a frequent question with its hit count.
type QuestionCount struct {
	Question string
	Category string
	Hits     int
}

// HourCount is message volume for one hour of the day.
type HourCount struct {
	Hour  int
	Count int
}

// ReportData aggregates a period for reporting.
type ReportData struct {
	From            time.Time
	To              time.Time
	Conversations   int
	Sales           int
	Revenue         float64
	UniqueCustomers int
	TopQuestions    []QuestionCount
	PeakHours       []HourCount
}

// ConversionRate returns sales per conversation as a percentage.
func (r *ReportData) ConversionRate() float64 {
	if r.Conversations == 0 {
		return 0
	}
	return float64(r.Sales) / float64(r.Conversations) * 100
}

// AverageTicket returns revenue per sale.
func (r *ReportData) AverageTicket() float64 {
	if r.Sales == 0 {
		return 0
	}
	return r.Revenue / float64(r.Sales)
}

// Report aggregates conversations between from (inclusive) and to (exclusive).
func (s *Store) Report(ctx context.Context, from, to time.Time) (*ReportData, error) {
	rep := &ReportData{From: from, To: to}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(sale), 0),
		       COALESCE(SUM(sale_amount), 0),
		       COUNT(DISTINCT customer)
		FROM conversations
		WHERE created_at >= ? AND created_at < ?`,
		from.UTC(), to.UTC(),
	)
	if err := row.Scan(&rep.Conversations, &rep.Sales, &rep.Revenue, &rep.UniqueCustomers); err != nil {
		return nil, fmt.Errorf("query report totals: %w", err)
	}

	questions, err := s.TopQuestions(ctx, 5)
	if err != nil {
		return nil, err
	}
	rep.TopQuestions = questions

	hours, err := s.peakHours(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rep.PeakHours = hours

	return rep, nil
}

// peakHours returns the three busiest hours of the period.
func (s *Store) peakHours(ctx context.Context, from, to time.Time) ([]HourCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', created_at) AS INTEGER) AS hour, COUNT(*)
		FROM conversations
		WHERE created_at >= ? AND created_at < ?
		GROUP BY hour
		ORDER BY COUNT(*) DESC, hour ASC
		LIMIT 3`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query peak hours: %w", err)
	}
	defer rows.Close()

	var out []HourCount
	for rows.Next() {
		var h HourCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("scan peak hour: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TopQuestions returns the most frequent questions, highest hits first.
func (s *Store) TopQuestions(ctx context.Context, limit int) ([]QuestionCount, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question, category, hits
		FROM frequent_questions
		ORDER BY hits DESC, last_seen DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top questions: %w", err)
	}
	defer rows.Close()

	var out []QuestionCount
	for rows.Next() {
		var q QuestionCount
		if err := rows.Scan(&q.Question, &q.Category, &q.Hits); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
