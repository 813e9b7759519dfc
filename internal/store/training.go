package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExportOptions filters the training transcript export.
type ExportOptions struct {
	SalesOnly bool // only customers with at least one sale
	Limit     int  // max customers, 0 = all
}

// ExportTraining renders past conversations as plain-text transcripts,
// one block per customer in chronological order. The output feeds the
// responder's example directory.
func (s *Store) ExportTraining(ctx context.Context, opts ExportOptions) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer, customer_name, message, reply, sale, created_at
		FROM conversations
		ORDER BY customer, created_at ASC, id ASC`,
	)
	if err != nil {
		return "", fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	type line struct {
		message, reply string
		sale           bool
		at             time.Time
	}
	type transcript struct {
		customer, name string
		lines          []line
		hasSale        bool
		first          time.Time
	}

	byCustomer := make(map[string]*transcript)
	for rows.Next() {
		var customer, name, message, reply string
		var sale int
		var at time.Time
		if err := rows.Scan(&customer, &name, &message, &reply, &sale, &at); err != nil {
			return "", fmt.Errorf("scan conversation: %w", err)
		}

		tr, ok := byCustomer[customer]
		if !ok {
			tr = &transcript{customer: customer, name: name, first: at}
			byCustomer[customer] = tr
		}
		if tr.name == "" {
			tr.name = name
		}
		tr.lines = append(tr.lines, line{message: message, reply: reply, sale: sale != 0, at: at})
		if sale != 0 {
			tr.hasSale = true
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	transcripts := make([]*transcript, 0, len(byCustomer))
	for _, tr := range byCustomer {
		if opts.SalesOnly && !tr.hasSale {
			continue
		}
		transcripts = append(transcripts, tr)
	}
	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].first.Before(transcripts[j].first)
	})
	if opts.Limit > 0 && len(transcripts) > opts.Limit {
		transcripts = transcripts[:opts.Limit]
	}

	var b strings.Builder
	for i, tr := range transcripts {
		if i > 0 {
			b.WriteString("\n")
		}
		name := tr.name
		if name == "" {
			name = "Cliente"
		}
		fmt.Fprintf(&b, "=== Conversa %d — %s (%s) ===\n", i+1, name, tr.customer)
		for _, l := range tr.lines {
			fmt.Fprintf(&b, "Cliente: %s\n", l.message)
			fmt.Fprintf(&b, "Vendedora: %s\n", l.reply)
			if l.sale {
				b.WriteString("[venda fechada]\n")
			}
		}
	}

	return b.String(), nil
}

// BestConversations returns the closed sales with the highest values, most
// valuable first. Useful for hand-picking transcripts worth keeping as
// responder examples.
func (s *Store) BestConversations(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer, customer_name, message, reply, actor, sale, sale_amount, created_at
		FROM conversations
		WHERE sale = 1
		ORDER BY sale_amount DESC, created_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query best conversations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var sale int
		if err := rows.Scan(&rec.ID, &rec.Customer, &rec.CustomerName, &rec.Message, &rec.Reply,
			&rec.Actor, &sale, &rec.SaleAmount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan best conversation: %w", err)
		}
		rec.Sale = sale != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}
