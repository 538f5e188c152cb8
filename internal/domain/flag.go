package domain

import "time"

// FeatureFlag is a per-organization override layered over plan features.
type FeatureFlag struct {
	OrgID     string
	Key       string
	Enabled   bool
	UpdatedAt time.Time
}
