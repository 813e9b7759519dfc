package report

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Deliverer receives rendered reports, normally the admin notifier.
type Deliverer interface {
	Report(ctx context.Context, text string)
}

// Scheduler delivers the daily report at a configured time, and optionally a
// weekly consolidated report on Sundays.
type Scheduler struct {
	svc       *Service
	deliverer Deliverer
	dailyExpr string
	weekExpr  string
	gron      *gronx.Gronx
}

// NewScheduler builds a scheduler. dailyAt is "HH:MM" local time; empty
// disables scheduling entirely. weekly adds a Sunday report at the same time.
func NewScheduler(svc *Service, deliverer Deliverer, dailyAt string, weekly bool) (*Scheduler, error) {
	if dailyAt == "" {
		return &Scheduler{svc: svc, deliverer: deliverer, gron: gronx.New()}, nil
	}

	hour, minute, err := parseClock(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("parse reports daily_at: %w", err)
	}

	s := &Scheduler{
		svc:       svc,
		deliverer: deliverer,
		dailyExpr: fmt.Sprintf("%d %d * * *", minute, hour),
		gron:      gronx.New(),
	}
	if weekly {
		s.weekExpr = fmt.Sprintf("%d %d * * 0", minute, hour)
	}
	return s, nil
}

// Run ticks once a minute and fires due reports. Blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s.dailyExpr == "" {
		slog.Info("report scheduler disabled")
		<-ctx.Done()
		return
	}

	slog.Info("report scheduler started", "daily", s.dailyExpr, "weekly", s.weekExpr)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if due, err := s.gron.IsDue(s.dailyExpr, now); err == nil && due {
		s.deliver(ctx, s.svc.TodayReport)
	}
	if s.weekExpr != "" {
		if due, err := s.gron.IsDue(s.weekExpr, now); err == nil && due {
			s.deliver(ctx, s.svc.WeekReport)
		}
	}
}

func (s *Scheduler) deliver(ctx context.Context, build func(context.Context) (string, error)) {
	text, err := build(ctx)
	if err != nil {
		slog.Error("scheduled report failed", "error", err)
		return
	}
	s.deliverer.Report(ctx, text)
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(v string) (hour, minute int, err error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}
