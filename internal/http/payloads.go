package httpx

import (
	"encoding/json"

	"github.com/launchpadhq/launchpad/internal/domain"
)

func userPayload(u *domain.User) map[string]any {
	return map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"name":           u.Name,
		"email_verified": u.EmailVerified,
		"is_staff":       u.IsStaff,
		"created_at":     u.CreatedAt,
	}
}

func orgPayload(o *domain.Organization) map[string]any {
	return map[string]any{
		"id":         o.ID,
		"name":       o.Name,
		"slug":       o.Slug,
		"owner_id":   o.OwnerID,
		"created_at": o.CreatedAt,
	}
}

func orgPayloads(orgs []domain.Organization) []map[string]any {
	out := make([]map[string]any, 0, len(orgs))
	for i := range orgs {
		out = append(out, orgPayload(&orgs[i]))
	}
	return out
}

func memberPayload(m domain.Membership) map[string]any {
	return map[string]any{
		"org_id":    m.OrgID,
		"user_id":   m.UserID,
		"role":      m.Role,
		"joined_at": m.JoinedAt,
	}
}

func memberPayloads(members []domain.Membership) []map[string]any {
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, memberPayload(m))
	}
	return out
}

func invitePayload(i domain.Invitation) map[string]any {
	payload := map[string]any{
		"id":         i.ID,
		"org_id":     i.OrgID,
		"email":      i.Email,
		"role":       i.Role,
		"invited_by": i.InvitedBy,
		"expires_at": i.ExpiresAt,
		"created_at": i.CreatedAt,
	}
	if i.AcceptedAt != nil {
		payload["accepted_at"] = i.AcceptedAt
	}
	return payload
}

func planPayload(p domain.Plan) map[string]any {
	features := json.RawMessage("{}")
	if len(p.Features) > 0 {
		features = p.Features
	}
	return map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"slug":             p.Slug,
		"gateway":          p.Gateway,
		"price_cents":      p.PriceCents,
		"billing_interval": p.BillingInterval,
		"features":         features,
		"is_active":        p.IsActive,
	}
}

func planPayloads(plans []domain.Plan) []map[string]any {
	out := make([]map[string]any, 0, len(plans))
	for _, p := range plans {
		out = append(out, planPayload(p))
	}
	return out
}

func subscriptionPayload(s *domain.Subscription, plan *domain.Plan) map[string]any {
	payload := map[string]any{
		"id":                   s.ID,
		"org_id":               s.OrgID,
		"plan_id":              s.PlanID,
		"gateway":              s.Gateway,
		"status":               s.Status,
		"cancel_at_period_end": s.CancelAtPeriodEnd,
		"created_at":           s.CreatedAt,
	}
	if s.CurrentPeriodStart != nil {
		payload["current_period_start"] = s.CurrentPeriodStart
	}
	if s.CurrentPeriodEnd != nil {
		payload["current_period_end"] = s.CurrentPeriodEnd
	}
	if s.TrialEnd != nil {
		payload["trial_end"] = s.TrialEnd
	}
	if s.CancelledAt != nil {
		payload["cancelled_at"] = s.CancelledAt
	}
	if plan != nil {
		payload["plan"] = planPayload(*plan)
	}
	return payload
}

func invoicePayloads(invoices []domain.Invoice) []map[string]any {
	out := make([]map[string]any, 0, len(invoices))
	for _, inv := range invoices {
		payload := map[string]any{
			"id":           inv.ID,
			"gateway":      inv.Gateway,
			"amount_cents": inv.AmountCents,
			"currency":     inv.Currency,
			"status":       inv.Status,
			"invoice_url":  inv.InvoiceURL,
		}
		if inv.IssuedAt != nil {
			payload["issued_at"] = inv.IssuedAt
		}
		if inv.PaidAt != nil {
			payload["paid_at"] = inv.PaidAt
		}
		out = append(out, payload)
	}
	return out
}

func flagPayload(f domain.FeatureFlag) map[string]any {
	return map[string]any{
		"org_id":     f.OrgID,
		"key":        f.Key,
		"enabled":    f.Enabled,
		"updated_at": f.UpdatedAt,
	}
}

func flagPayloads(flags []domain.FeatureFlag) []map[string]any {
	out := make([]map[string]any, 0, len(flags))
	for _, f := range flags {
		out = append(out, flagPayload(f))
	}
	return out
}

func dailyMetricPayloads(metrics []domain.DailyMetric) []map[string]any {
	out := make([]map[string]any, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, map[string]any{
			"date":          m.Date.Format("2006-01-02"),
			"dau":           m.DAU,
			"new_users":     m.NewUsers,
			"revenue_cents": m.RevenueCents,
		})
	}
	return out
}

func monthlyMetricPayloads(metrics []domain.MonthlyMetric) []map[string]any {
	out := make([]map[string]any, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, map[string]any{
			"year":      m.Year,
			"month":     m.Month,
			"mau":       m.MAU,
			"mrr_cents": m.MRRCents,
		})
	}
	return out
}
