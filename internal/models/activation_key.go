package models

import "time"

// ActivationKey is a one-shot code that lets a user register a device under a plan.
type ActivationKey struct {
	Code      string // ten uppercase alphanumerics
	CreatedBy int64
	Plan      string
	Used      bool
	UsedBy    *int64
	CreatedAt time.Time
	UsedAt    *time.Time
}

// KeyStats summarizes activation keys for a plan.
type KeyStats struct {
	Plan   string
	Total  int
	Used   int
	Unused int
}
