// Package store persists conversations, daily sales metrics and frequent
// questions in SQLite. Conversation rows are append-only; corrections happen
// by appending new rows, never by rewriting history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Actor identifies who produced a reply.
const (
	ActorBot   = "bot"
	ActorHuman = "human"
)

// Record is one customer message and the reply it received.
type Record struct {
	ID           int64
	Customer     string // digits-only phone number
	CustomerName string
	Message      string
	Reply        string
	Actor        string
	Sale         bool
	SaleAmount   float64
	CreatedAt    time.Time
}

// Exchange is a past message/reply pair, used as responder context.
type Exchange struct {
	Message   string
	Reply     string
	Actor     string
	CreatedAt time.Time
}

// CustomerContext summarizes a customer's history.
type CustomerContext struct {
	Messages   int
	Purchases  int
	TotalSpent float64
	FirstSeen  time.Time
	LastSeen   time.Time
	Recurring  bool // more than one prior purchase
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	customer      TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL,
	reply         TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT 'bot',
	sale          INTEGER NOT NULL DEFAULT 0,
	sale_amount   REAL NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations(customer);
CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);

CREATE TABLE IF NOT EXISTS daily_metrics (
	day           TEXT PRIMARY KEY,
	conversations INTEGER NOT NULL DEFAULT 0,
	sales         INTEGER NOT NULL DEFAULT 0,
	revenue       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS frequent_questions (
	question  TEXT PRIMARY KEY,
	category  TEXT NOT NULL DEFAULT 'geral',
	hits      INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (creating if needed) the database at path. Timestamps are stored
// in sqlite's own format so the date functions (strftime) work on them.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes access per connection; a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveConversation appends a conversation record.
func (s *Store) SaveConversation(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	actor := rec.Actor
	if actor == "" {
		actor = ActorBot
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (customer, customer_name, message, reply, actor, sale, sale_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Customer, rec.CustomerName, rec.Message, rec.Reply, actor,
		boolToInt(rec.Sale), rec.SaleAmount, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// History returns the customer's most recent exchanges, oldest first.
func (s *Store) History(ctx context.Context, customer string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message, reply, actor, created_at FROM (
			SELECT message, reply, actor, created_at
			FROM conversations
			WHERE customer = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC`,
		customer, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.Message, &e.Reply, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Context returns aggregate stats for a customer. A customer never seen
// before yields a zero-value context, not an error.
func (s *Store) Context(ctx context.Context, customer string) (*CustomerContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(sale), 0),
		       COALESCE(SUM(sale_amount), 0),
		       MIN(created_at),
		       MAX(created_at)
		FROM conversations
		WHERE customer = ?`,
		customer,
	)

	var cc CustomerContext
	var first, last sql.NullTime
	if err := row.Scan(&cc.Messages, &cc.Purchases, &cc.TotalSpent, &first, &last); err != nil {
		return nil, fmt.Errorf("query customer context: %w", err)
	}
	if first.Valid {
		cc.FirstSeen = first.Time
	}
	if last.Valid {
		cc.LastSeen = last.Time
	}
	cc.Recurring = cc.Purchases > 1

	return &cc, nil
}

// RecordQuestion upserts a frequent question, bumping the hit counter.
func (s *Store) RecordQuestion(ctx context.Context, question, category string) error {
	if category == "" {
		category = "geral"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frequent_questions (question, category, hits, last_seen)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(question) DO UPDATE SET
			hits = hits + 1,
			category = excluded.category,
			last_seen = CURRENT_TIMESTAMP`,
		question, category,
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

// BumpDailyMetrics increments today's counters. day is "2006-01-02".
func (s *Store) BumpDailyMetrics(ctx context.Context, day string, sale bool, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (day, conversations, sales, revenue)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			conversations = conversations + 1,
			sales = sales + excluded.sales,
			revenue = revenue + excluded.revenue`,
		day, boolToInt(sale), amount,
	)
	if err != nil {
		return fmt.Errorf("bump daily metrics: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
