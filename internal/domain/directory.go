package domain

import "context"

// District is a school district known to the CRM, keyed by NCES LEAID.
type District struct {
	LEAID   string
	Name    string
	State   string
	Domains []string
}

// Contact is a person at a district.
type Contact struct {
	ID    string
	LEAID string
	Name  string
	Email string
}

// TerritoryPlan is a named set of districts owned by a sales user.
type TerritoryPlan struct {
	ID     string
	UserID string
	Name   string
	Color  string
	LEAIDs []string
}

// Directory exposes read-only district, contact and plan lookups used for matching.
type Directory interface {
	DistrictsByDomain(ctx context.Context, domain string) ([]District, error)
	// SearchDistricts returns up to limit districts whose name contains any of the terms,
	// those matching more terms first, then shorter names, then by LEAID.
	SearchDistricts(ctx context.Context, terms []string, limit int) ([]District, error)
	ContactsByDistrict(ctx context.Context, leaid string) ([]Contact, error)
	PlansByDistrict(ctx context.Context, userID, leaid string) ([]TerritoryPlan, error)
}
