package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/ws"
)

// ErrInvalidEvent is returned when a tracked event fails validation.
var ErrInvalidEvent = errors.New("event name is required")

const (
	maxEventNameLen  = 200
	maxPropertiesLen = 8 * 1024
	dayFormat        = "2006-01-02"
)

// Service ingests analytics events and serves usage metrics.
type Service struct {
	events repository.AnalyticsRepository
	subs   repository.SubscriptionRepository
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a Service. hub may be nil when live streaming is disabled.
func New(events repository.AnalyticsRepository, subs repository.SubscriptionRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{events: events, subs: subs, hub: hub, logger: logger}
}

// TrackInput is a raw event submitted by a client.
type TrackInput struct {
	Name       string          `json:"name"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
	UserID     string          `json:"-"`
	IPAddress  string          `json:"-"`
	UserAgent  string          `json:"-"`
}

// Track validates and stores an event, then pushes it to live stream
// subscribers.
func (s Service) Track(ctx context.Context, orgID string, in TrackInput) (*domain.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxEventNameLen {
		return nil, ErrInvalidEvent
	}
	if len(in.Properties) > maxPropertiesLen {
		return nil, errors.New("event properties too large")
	}
	now := time.Now().UTC()
	ts := now
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC()
	}
	event := &domain.Event{
		OrgID:      orgID,
		Name:       name,
		Properties: in.Properties,
		Timestamp:  ts,
		ReceivedAt: now,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	}
	if in.UserID != "" {
		userID := in.UserID
		event.UserID = &userID
	}
	if err := s.events.InsertEvent(ctx, event); err != nil {
		return nil, err
	}
	s.publish(orgID, event)
	return event, nil
}

func (s Service) publish(orgID string, event *domain.Event) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"name":       event.Name,
		"properties": event.Properties,
		"timestamp":  event.Timestamp,
		"user_id":    event.UserID,
	})
	if err != nil {
		s.logger.Warn("failed to encode live event", "error", err)
		return
	}
	s.hub.Broadcast(orgID, payload)
}

// DAUSeries returns a zero-filled daily-active-users series covering the
// last days days, newest last.
func (s Service) DAUSeries(ctx context.Context, orgID string, days int) ([]domain.DAUPoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	counts, err := s.events.CountDailyActiveUsers(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}
	series := make([]domain.DAUPoint, 0, days)
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		series = append(series, domain.DAUPoint{Date: day, DAU: counts[day.Format(dayFormat)]})
	}
	return series, nil
}

// WAUSeries returns weekly-active-user buckets covering the last weeks
// seven-day windows, oldest first.
func (s Service) WAUSeries(ctx context.Context, orgID string, weeks int) ([]domain.WAUBucket, error) {
	if weeks <= 0 || weeks > 52 {
		weeks = 12
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	buckets := make([]domain.WAUBucket, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		end := today.AddDate(0, 0, -7*i+1)
		start := end.AddDate(0, 0, -7)
		count, err := s.events.CountActiveUsers(ctx, orgID, start, end)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, domain.WAUBucket{WeekStart: start, WeekEnd: end.AddDate(0, 0, -1), WAU: count})
	}
	return buckets, nil
}

// RevenueSeries returns a zero-filled daily revenue series from paid
// invoices covering the last days days, newest last.
func (s Service) RevenueSeries(ctx context.Context, orgID string, days int) ([]domain.RevenuePoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	totals, err := s.subs.SumPaidInvoiceCentsByDay(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}
	series := make([]domain.RevenuePoint, 0, days)
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		series = append(series, domain.RevenuePoint{Date: day, RevenueCents: totals[day.Format(dayFormat)]})
	}
	return series, nil
}

// TopEvents lists the most frequently tracked event names over the last
// days days.
func (s Service) TopEvents(ctx context.Context, orgID string, days, limit int) ([]domain.EventCount, error) {
	counts, err := s.eventCounts(ctx, orgID, days)
	if err != nil {
		return nil, err
	}
	return clampCounts(counts, limit), nil
}

// LeastUsedEvents lists the rarest tracked event names over the last days
// days. Events never tracked in the window do not appear at all.
func (s Service) LeastUsedEvents(ctx context.Context, orgID string, days, limit int) ([]domain.EventCount, error) {
	counts, err := s.eventCounts(ctx, orgID, days)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(counts)-1; i < j; i, j = i+1, j-1 {
		counts[i], counts[j] = counts[j], counts[i]
	}
	return clampCounts(counts, limit), nil
}

func (s Service) eventCounts(ctx context.Context, orgID string, days int) ([]domain.EventCount, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	now := time.Now().UTC()
	return s.events.CountEventsByName(ctx, orgID, now.AddDate(0, 0, -days), now)
}

func clampCounts(counts []domain.EventCount, limit int) []domain.EventCount {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// MAU returns the distinct active users over the trailing 30 days.
func (s Service) MAU(ctx context.Context, orgID string) (int, error) {
	now := time.Now().UTC()
	return s.events.CountActiveUsers(ctx, orgID, now.AddDate(0, 0, -30), now)
}

// DailyMetrics lists stored daily rollups for the last days days.
func (s Service) DailyMetrics(ctx context.Context, orgID string, days int) ([]domain.DailyMetric, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return s.events.ListDailyMetrics(ctx, orgID, today.AddDate(0, 0, -(days-1)), today.AddDate(0, 0, 1))
}

// MonthlyMetrics lists the most recent monthly rollups.
func (s Service) MonthlyMetrics(ctx context.Context, orgID string, limit int) ([]domain.MonthlyMetric, error) {
	if limit <= 0 || limit > 36 {
		limit = 12
	}
	return s.events.ListMonthlyMetrics(ctx, orgID, limit)
}
