package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

// CreatePlan inserts a billing plan.
func (r *Repository) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	const query = `INSERT INTO plans (id, name, slug, gateway, gateway_product_id, gateway_price_id, price_cents, billing_interval, features, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, '{}'::jsonb), $10, $11, $11)`
	_, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.Name,
		plan.Slug,
		plan.Gateway,
		plan.GatewayProductID,
		plan.GatewayPriceID,
		plan.PriceCents,
		plan.BillingInterval,
		bytesToNil(plan.Features),
		plan.IsActive,
		plan.CreatedAt,
	)
	return mapPgError(err)
}

// GetPlanByID fetches a plan.
func (r *Repository) GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error) {
	const query = `SELECT id, name, slug, gateway, gateway_product_id, gateway_price_id, price_cents, billing_interval, features, is_active, created_at, updated_at
		FROM plans WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, planID)
	var p domain.Plan
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Gateway, &p.GatewayProductID, &p.GatewayPriceID, &p.PriceCents, &p.BillingInterval, &p.Features, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// PlanSlugExists reports whether a plan slug is taken.
func (r *Repository) PlanSlugExists(ctx context.Context, slug string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM plans WHERE slug = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListActivePlans returns plans open for new subscriptions, cheapest first.
func (r *Repository) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	const query = `SELECT id, name, slug, gateway, gateway_product_id, gateway_price_id, price_cents, billing_interval, features, is_active, created_at, updated_at
		FROM plans WHERE is_active ORDER BY price_cents ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.Plan, 0)
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Gateway, &p.GatewayProductID, &p.GatewayPriceID, &p.PriceCents, &p.BillingInterval, &p.Features, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

const subscriptionColumns = `id, org_id, plan_id, gateway, gateway_subscription_id, gateway_customer_id, status,
	current_period_start, current_period_end, trial_end, cancel_at_period_end, cancelled_at, created_at, updated_at`

// CreateSubscription inserts a subscription record.
func (r *Repository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	const query = `INSERT INTO subscriptions (id, org_id, plan_id, gateway, gateway_subscription_id, gateway_customer_id, status, current_period_start, current_period_end, trial_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	_, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.OrgID,
		sub.PlanID,
		sub.Gateway,
		sub.GatewaySubscriptionID,
		sub.GatewayCustomerID,
		sub.Status,
		timePtrToNil(sub.CurrentPeriodStart),
		timePtrToNil(sub.CurrentPeriodEnd),
		timePtrToNil(sub.TrialEnd),
		sub.CancelAtPeriodEnd,
		sub.CreatedAt,
	)
	return mapPgError(err)
}

// UpdateSubscription rewrites the mutable subscription columns.
func (r *Repository) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	const query = `UPDATE subscriptions
		SET status = $2,
			current_period_start = $3,
			current_period_end = $4,
			trial_end = $5,
			cancel_at_period_end = $6,
			cancelled_at = $7,
			updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	var updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.Status,
		timePtrToNil(sub.CurrentPeriodStart),
		timePtrToNil(sub.CurrentPeriodEnd),
		timePtrToNil(sub.TrialEnd),
		sub.CancelAtPeriodEnd,
		timePtrToNil(sub.CancelledAt),
	).Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapPgError(err)
	}
	sub.UpdatedAt = updatedAt
	return nil
}

// GetSubscriptionByID fetches a subscription.
func (r *Repository) GetSubscriptionByID(ctx context.Context, subID string) (*domain.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, subID))
}

// GetSubscriptionByGatewayID resolves the local record for a gateway subscription.
func (r *Repository) GetSubscriptionByGatewayID(ctx context.Context, gateway, gatewaySubID string) (*domain.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE gateway = $1 AND gateway_subscription_id = $2`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, gateway, gatewaySubID))
}

// GetCurrentSubscription returns the most recent non-cancelled subscription
// for the organization.
func (r *Repository) GetCurrentSubscription(ctx context.Context, orgID string) (*domain.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE org_id = $1 AND status <> 'cancelled'
		ORDER BY created_at DESC LIMIT 1`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, orgID))
}

func (r *Repository) scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s           domain.Subscription
		periodStart sql.NullTime
		periodEnd   sql.NullTime
		trialEnd    sql.NullTime
		cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.PlanID,
		&s.Gateway,
		&s.GatewaySubscriptionID,
		&s.GatewayCustomerID,
		&s.Status,
		&periodStart,
		&periodEnd,
		&trialEnd,
		&s.CancelAtPeriodEnd,
		&cancelledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if periodStart.Valid {
		value := periodStart.Time.UTC()
		s.CurrentPeriodStart = &value
	}
	if periodEnd.Valid {
		value := periodEnd.Time.UTC()
		s.CurrentPeriodEnd = &value
	}
	if trialEnd.Valid {
		value := trialEnd.Time.UTC()
		s.TrialEnd = &value
	}
	if cancelledAt.Valid {
		value := cancelledAt.Time.UTC()
		s.CancelledAt = &value
	}
	return &s, nil
}

// UpsertInvoice stores an invoice keyed by its gateway identifier.
func (r *Repository) UpsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	const query = `INSERT INTO invoices (id, org_id, subscription_id, gateway, gateway_invoice_id, amount_cents, currency, status, issued_at, paid_at, invoice_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (gateway_invoice_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_cents = EXCLUDED.amount_cents,
			paid_at = COALESCE(EXCLUDED.paid_at, invoices.paid_at),
			invoice_url = COALESCE(NULLIF(EXCLUDED.invoice_url, ''), invoices.invoice_url)`
	_, err := r.pool.Exec(ctx, query,
		invoice.ID,
		invoice.OrgID,
		stringPtrToNil(invoice.SubscriptionID),
		invoice.Gateway,
		invoice.GatewayInvoiceID,
		invoice.AmountCents,
		invoice.Currency,
		invoice.Status,
		timePtrToNil(invoice.IssuedAt),
		timePtrToNil(invoice.PaidAt),
		invoice.InvoiceURL,
		invoice.CreatedAt,
	)
	return mapPgError(err)
}

// ListInvoicesByOrg fetches recent invoices for an organization.
func (r *Repository) ListInvoicesByOrg(ctx context.Context, orgID string, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, org_id, subscription_id, gateway, gateway_invoice_id, amount_cents, currency, status, issued_at, paid_at, invoice_url, created_at
		FROM invoices WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0)
	for rows.Next() {
		var (
			inv      domain.Invoice
			subID    sql.NullString
			issuedAt sql.NullTime
			paidAt   sql.NullTime
			invURL   sql.NullString
		)
		if err := rows.Scan(&inv.ID, &inv.OrgID, &subID, &inv.Gateway, &inv.GatewayInvoiceID, &inv.AmountCents, &inv.Currency, &inv.Status, &issuedAt, &paidAt, &invURL, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if subID.Valid {
			value := subID.String
			inv.SubscriptionID = &value
		}
		if issuedAt.Valid {
			value := issuedAt.Time.UTC()
			inv.IssuedAt = &value
		}
		if paidAt.Valid {
			value := paidAt.Time.UTC()
			inv.PaidAt = &value
		}
		if invURL.Valid {
			inv.InvoiceURL = invURL.String
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// SumPaidInvoiceCents totals paid invoices for the organization in a window.
func (r *Repository) SumPaidInvoiceCents(ctx context.Context, orgID string, from, to time.Time) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount_cents), 0) FROM invoices
		WHERE org_id = $1 AND status = 'paid' AND paid_at >= $2 AND paid_at < $3`
	var total int64
	if err := r.pool.QueryRow(ctx, query, orgID, from, to).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SumPaidInvoiceCentsByDay totals paid invoices per day, keyed by the day
// formatted as 2006-01-02. Days with no payments are absent.
func (r *Repository) SumPaidInvoiceCentsByDay(ctx context.Context, orgID string, from, to time.Time) (map[string]int64, error) {
	const query = `SELECT to_char(date_trunc('day', paid_at), 'YYYY-MM-DD') AS day, COALESCE(SUM(amount_cents), 0)
		FROM invoices
		WHERE org_id = $1 AND status = 'paid' AND paid_at >= $2 AND paid_at < $3
		GROUP BY day`
	rows, err := r.pool.Query(ctx, query, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var day string
		var cents int64
		if err := rows.Scan(&day, &cents); err != nil {
			return nil, err
		}
		totals[day] = cents
	}
	return totals, rows.Err()
}

// InsertWebhookEvent records a processed webhook event.
func (r *Repository) InsertWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	const query = `INSERT INTO webhook_events (gateway, event_id, event_type, payload, processed_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		event.Gateway,
		event.EventID,
		event.EventType,
		bytesToNil(event.Payload),
		event.ProcessedAt,
	).Scan(&event.ID)
	return mapPgError(err)
}

// WebhookEventExists reports whether the event was already processed.
func (r *Repository) WebhookEventExists(ctx context.Context, gateway, eventID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE gateway = $1 AND event_id = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, gateway, eventID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
