package analytics

import (
	"context"
	"time"

	"log/slog"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

// Rollup periodically aggregates raw events and invoices into daily and
// monthly metrics per organization.
type Rollup struct {
	events   repository.AnalyticsRepository
	subs     repository.SubscriptionRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewRollup constructs the rollup worker.
func NewRollup(events repository.AnalyticsRepository, subs repository.SubscriptionRepository, logger *slog.Logger, interval time.Duration) *Rollup {
	return &Rollup{events: events, subs: subs, logger: logger, interval: interval, now: time.Now}
}

// Run recomputes metrics on a fixed interval until the context is
// cancelled. The first pass happens immediately.
func (r *Rollup) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("analytics rollup started", "interval", r.interval)
	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("analytics rollup stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Rollup) runOnce(ctx context.Context) {
	orgIDs, err := r.events.ListOrganizationIDs(ctx)
	if err != nil {
		r.logger.Error("rollup failed to list organizations", "error", err)
		return
	}
	for _, orgID := range orgIDs {
		if err := r.rollupOrg(ctx, orgID); err != nil {
			r.logger.Error("rollup failed", "org_id", orgID, "error", err)
		}
	}
}

// rollupOrg finalizes yesterday's daily metric, recomputes today's
// running one, and refreshes the current month. Rerunning is safe: all
// writes are upserts.
func (r *Rollup) rollupOrg(ctx context.Context, orgID string) error {
	now := r.now().UTC()
	today := now.Truncate(24 * time.Hour)

	// Yesterday first so events landing just before midnight are
	// captured in their final day once the date rolls over.
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		if err := r.rollupDay(ctx, orgID, day); err != nil {
			return err
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	mau, err := r.events.CountActiveUsers(ctx, orgID, monthStart, nextMonth)
	if err != nil {
		return err
	}
	mrr, err := r.subs.SumPaidInvoiceCents(ctx, orgID, monthStart, nextMonth)
	if err != nil {
		return err
	}
	monthly := &domain.MonthlyMetric{
		OrgID:    orgID,
		Year:     now.Year(),
		Month:    int(now.Month()),
		MAU:      mau,
		MRRCents: mrr,
	}
	return r.events.UpsertMonthlyMetric(ctx, monthly)
}

func (r *Rollup) rollupDay(ctx context.Context, orgID string, day time.Time) error {
	next := day.AddDate(0, 0, 1)
	counts, err := r.events.CountDailyActiveUsers(ctx, orgID, day, next)
	if err != nil {
		return err
	}
	newMembers, err := r.events.CountNewMembers(ctx, orgID, day, next)
	if err != nil {
		return err
	}
	revenue, err := r.subs.SumPaidInvoiceCents(ctx, orgID, day, next)
	if err != nil {
		return err
	}
	daily := &domain.DailyMetric{
		OrgID:        orgID,
		Date:         day,
		DAU:          counts[day.Format(dayFormat)],
		NewUsers:     newMembers,
		RevenueCents: revenue,
	}
	return r.events.UpsertDailyMetric(ctx, daily)
}
