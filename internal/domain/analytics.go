package domain

import (
	"encoding/json"
	"time"
)

// Event is a single tracked analytics event.
type Event struct {
	ID         int64
	OrgID      string
	UserID     *string
	Name       string
	Properties json.RawMessage
	Timestamp  time.Time
	ReceivedAt time.Time
	IPAddress  string
	UserAgent  string
}

// DailyMetric is a per-day usage rollup for an organization.
type DailyMetric struct {
	OrgID        string
	Date         time.Time
	DAU          int
	NewUsers     int
	RevenueCents int64
	UpdatedAt    time.Time
}

// MonthlyMetric is a per-month usage rollup for an organization.
type MonthlyMetric struct {
	OrgID     string
	Year      int
	Month     int
	MAU       int
	MRRCents  int64
	UpdatedAt time.Time
}

// RevenuePoint is one entry of a daily revenue series.
type RevenuePoint struct {
	Date         time.Time `json:"date"`
	RevenueCents int64     `json:"revenue_cents"`
}

// EventCount is an event name with its occurrence count over a window.
type EventCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DAUPoint is one entry of a daily-active-users series.
type DAUPoint struct {
	Date time.Time `json:"date"`
	DAU  int       `json:"dau"`
}

// WAUBucket is one seven-day window of a weekly-active-users series.
type WAUBucket struct {
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	WAU       int       `json:"wau"`
}
