package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// AddDistrict registers a district and its email domains.
func (s *Store) AddDistrict(d domain.District) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Domains = append([]string(nil), d.Domains...)
	s.districts[d.LEAID] = d
}

// AddContact registers a district contact.
func (s *Store) AddContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, c)
}

// AddPlan registers a territory plan.
func (s *Store) AddPlan(p domain.TerritoryPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.LEAIDs = append([]string(nil), p.LEAIDs...)
	s.plans = append(s.plans, p)
}

// DistrictsByDomain implements domain.Directory.
func (s *Store) DistrictsByDomain(ctx context.Context, emailDomain string) ([]domain.District, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emailDomain = strings.ToLower(strings.TrimSpace(emailDomain))
	out := make([]domain.District, 0)
	for _, d := range s.districts {
		for _, registered := range d.Domains {
			if strings.EqualFold(registered, emailDomain) {
				out = append(out, d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LEAID < out[j].LEAID })
	return out, nil
}

// SearchDistricts implements domain.Directory with a case-insensitive substring scan.
func (s *Store) SearchDistricts(ctx context.Context, terms []string, limit int) ([]domain.District, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		district domain.District
		hits     int
	}
	found := make([]scored, 0)
	for _, d := range s.districts {
		name := strings.ToLower(d.Name)
		hits := 0
		for _, term := range terms {
			if term != "" && strings.Contains(name, strings.ToLower(term)) {
				hits++
			}
		}
		if hits > 0 {
			found = append(found, scored{district: d, hits: hits})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.hits != b.hits {
			return a.hits > b.hits
		}
		if len(a.district.Name) != len(b.district.Name) {
			return len(a.district.Name) < len(b.district.Name)
		}
		return a.district.LEAID < b.district.LEAID
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]domain.District, 0, len(found))
	for _, f := range found {
		out = append(out, f.district)
	}
	return out, nil
}

// ContactsByDistrict implements domain.Directory.
func (s *Store) ContactsByDistrict(ctx context.Context, leaid string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Contact, 0)
	for _, c := range s.contacts {
		if c.LEAID == leaid {
			out = append(out, c)
		}
	}
	return out, nil
}

// PlansByDistrict implements domain.Directory.
func (s *Store) PlansByDistrict(ctx context.Context, userID, leaid string) ([]domain.TerritoryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TerritoryPlan, 0)
	for _, p := range s.plans {
		if p.UserID != userID {
			continue
		}
		for _, id := range p.LEAIDs {
			if id == leaid {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
