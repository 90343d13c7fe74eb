package postgres

import (
	"context"
	"strings"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// DistrictsByDomain implements domain.Directory.
func (r *Repository) DistrictsByDomain(ctx context.Context, emailDomain string) ([]domain.District, error) {
	return r.queryDistricts(ctx, `SELECT leaid, name, state, domains FROM districts
        WHERE EXISTS (SELECT 1 FROM unnest(domains) d WHERE lower(d) = lower($1))
        ORDER BY leaid`, emailDomain)
}

// SearchDistricts implements domain.Directory with a case-insensitive substring match.
func (r *Repository) SearchDistricts(ctx context.Context, terms []string, limit int) ([]domain.District, error) {
	patterns := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		patterns = append(patterns, "%"+likeEscaper.Replace(term)+"%")
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return r.queryDistricts(ctx, `SELECT leaid, name, state, domains FROM districts
        WHERE name ILIKE ANY($1)
        ORDER BY (SELECT count(*) FROM unnest($1::text[]) p WHERE name ILIKE p) DESC, length(name), leaid
        LIMIT $2`, patterns, limit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repository) queryDistricts(ctx context.Context, query string, args ...interface{}) ([]domain.District, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.District, 0)
	for rows.Next() {
		var d domain.District
		if err := rows.Scan(&d.LEAID, &d.Name, &d.State, &d.Domains); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ContactsByDistrict implements domain.Directory.
func (r *Repository) ContactsByDistrict(ctx context.Context, leaid string) ([]domain.Contact, error) {
	rows, err := r.pool.Query(ctx, `SELECT contact_id, leaid, name, email FROM contacts WHERE leaid=$1 ORDER BY contact_id`, leaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Contact, 0)
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.LEAID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PlansByDistrict implements domain.Directory.
func (r *Repository) PlansByDistrict(ctx context.Context, userID, leaid string) ([]domain.TerritoryPlan, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.plan_id, p.user_id, p.name, p.color,
            ARRAY(SELECT leaid FROM territory_plan_districts WHERE plan_id = p.plan_id ORDER BY leaid)
        FROM territory_plans p
        JOIN territory_plan_districts pd ON pd.plan_id = p.plan_id
        WHERE p.user_id=$1 AND pd.leaid=$2
        ORDER BY p.plan_id`, userID, leaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TerritoryPlan, 0)
	for rows.Next() {
		var p domain.TerritoryPlan
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Color, &p.LEAIDs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
