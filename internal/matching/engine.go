// Package matching proposes a district, contacts, territory plan and activity type for a staged
// calendar event and grades the proposal with a deterministic confidence tier.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// ConnectionContext carries the connection facts that shape matching.
type ConnectionContext struct {
	UserID       string
	OrgDomain    string
	AccountEmail string
}

// ContextFor derives the matching context of a connection.
func ContextFor(conn domain.CalendarConnection) ConnectionContext {
	account := ""
	if strings.Contains(conn.AccountRef, "@") && !strings.Contains(conn.AccountRef, "://") {
		account = strings.ToLower(strings.TrimSpace(conn.AccountRef))
	}
	return ConnectionContext{
		UserID:       conn.UserID,
		OrgDomain:    conn.NormalizedOrgDomain(),
		AccountEmail: account,
	}
}

type districtSource int

const (
	sourceNone districtSource = iota
	sourceFuzzy
	sourceExact
)

type keywordRule struct {
	activityType string
	phrases      []string
}

// Engine applies the match heuristics. For a fixed directory state its output is a pure
// function of the event and connection context.
type Engine struct {
	dir      domain.Directory
	rules    Rules
	keywords []keywordRule
	freeMail map[string]struct{}
}

// NewEngine constructs an Engine over the directory with the given rules.
func NewEngine(dir domain.Directory, rules Rules) *Engine {
	keywords := make([]keywordRule, 0, len(rules.ActivityKeywords))
	for _, rule := range rules.ActivityKeywords {
		phrases := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if p := phrase(kw); strings.TrimSpace(p) != "" {
				phrases = append(phrases, p)
			}
		}
		keywords = append(keywords, keywordRule{activityType: rule.Type, phrases: phrases})
	}

	freeMail := make(map[string]struct{}, len(rules.FreeMailDomains))
	for _, d := range rules.FreeMailDomains {
		freeMail[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}

	return &Engine{dir: dir, rules: rules, keywords: keywords, freeMail: freeMail}
}

// Match proposes a suggestion for the event.
func (e *Engine) Match(ctx context.Context, event domain.CalendarEvent, cc ConnectionContext) (domain.MatchSuggestion, error) {
	external := e.externalAttendees(event.Attendees, cc)
	activityType, keywordHit := e.activityType(event.Title)

	suggestion := domain.MatchSuggestion{
		ActivityType: activityType,
		Confidence:   domain.ConfidenceNone,
	}

	district, source, err := e.exactDistrict(ctx, external)
	if err != nil {
		return domain.MatchSuggestion{}, err
	}
	if district == nil {
		district, err = e.fuzzyDistrict(ctx, event.Title+" "+event.Location)
		if err != nil {
			return domain.MatchSuggestion{}, err
		}
		if district != nil {
			source = sourceFuzzy
		}
	}

	if district != nil {
		suggestion.DistrictLEAID = district.LEAID
		suggestion.DistrictName = district.Name
		suggestion.DistrictState = district.State

		contactIDs, err := e.matchContacts(ctx, district.LEAID, external)
		if err != nil {
			return domain.MatchSuggestion{}, err
		}
		suggestion.ContactIDs = contactIDs

		plan, err := e.uniquePlan(ctx, cc.UserID, district.LEAID)
		if err != nil {
			return domain.MatchSuggestion{}, err
		}
		if plan != nil {
			suggestion.PlanID = plan.ID
			suggestion.PlanName = plan.Name
			suggestion.PlanColor = plan.Color
		}
	}

	suggestion.Confidence = tier(e.rules.Tiers, source, len(suggestion.ContactIDs), keywordHit)
	return suggestion, nil
}

// externalAttendees returns the sorted, de-duplicated customer-side attendee emails.
func (e *Engine) externalAttendees(attendees []domain.Attendee, cc ConnectionContext) []string {
	seen := make(map[string]struct{}, len(attendees))
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		domainPart := emailDomain(email)
		if domainPart == "" {
			continue
		}
		if email == cc.AccountEmail || sameOrSubdomain(domainPart, cc.OrgDomain) {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) activityType(title string) (string, bool) {
	text := phrase(title)
	for _, rule := range e.keywords {
		for _, p := range rule.phrases {
			if strings.Contains(text, p) {
				return rule.activityType, true
			}
		}
	}
	return e.rules.DefaultActivityType, false
}

// exactDistrict picks the district whose registered domain matches the most external attendees.
func (e *Engine) exactDistrict(ctx context.Context, emails []string) (*domain.District, districtSource, error) {
	counts := make(map[string]int)
	districts := make(map[string]domain.District)
	lookedUp := make(map[string][]domain.District)

	for _, email := range emails {
		d := emailDomain(email)
		if _, free := e.freeMail[d]; free {
			continue
		}
		matches, ok := lookedUp[d]
		if !ok {
			var err error
			matches, err = e.dir.DistrictsByDomain(ctx, d)
			if err != nil {
				return nil, sourceNone, fmt.Errorf("districts by domain %s: %w", d, err)
			}
			lookedUp[d] = matches
		}
		for _, district := range matches {
			counts[district.LEAID]++
			districts[district.LEAID] = district
		}
	}

	best := ""
	for leaid, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && leaid < best) {
			best = leaid
		}
	}
	if best == "" {
		return nil, sourceNone, nil
	}
	district := districts[best]
	return &district, sourceExact, nil
}

// fuzzyDistrict finds a district whose identifying name words all appear in the text.
func (e *Engine) fuzzyDistrict(ctx context.Context, text string) (*domain.District, error) {
	words := textWords(text)
	present := make(map[string]struct{}, len(words))
	termSet := make(map[string]struct{})
	for _, w := range words {
		present[w] = struct{}{}
		if len(w) >= e.rules.MinFuzzyNameLength {
			if _, noise := districtNoise[w]; !noise {
				termSet[w] = struct{}{}
			}
		}
	}
	if len(termSet) == 0 {
		return nil, nil
	}
	terms := make([]string, 0, len(termSet))
	for w := range termSet {
		terms = append(terms, w)
	}
	sort.Strings(terms)

	// One lookup per term so districts named after a common word cannot use up the candidate
	// limit of a rarer term.
	var candidates []domain.District
	listed := make(map[string]struct{})
	for _, term := range terms {
		found, err := e.dir.SearchDistricts(ctx, []string{term}, e.rules.MaxFuzzyCandidates)
		if err != nil {
			return nil, fmt.Errorf("search districts: %w", err)
		}
		for _, d := range found {
			if _, dup := listed[d.LEAID]; dup {
				continue
			}
			listed[d.LEAID] = struct{}{}
			candidates = append(candidates, d)
		}
	}

	var best *domain.District
	bestLen := 0
	for i := range candidates {
		candidate := candidates[i]
		nameWords := districtWords(candidate.Name)
		joined := strings.Join(nameWords, "")
		if len(joined) < e.rules.MinFuzzyNameLength {
			continue
		}
		if !containsAll(present, nameWords) {
			continue
		}
		if best == nil || len(joined) > bestLen || (len(joined) == bestLen && candidate.LEAID < best.LEAID) {
			best = &candidate
			bestLen = len(joined)
		}
	}
	return best, nil
}

func (e *Engine) matchContacts(ctx context.Context, leaid string, emails []string) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	contacts, err := e.dir.ContactsByDistrict(ctx, leaid)
	if err != nil {
		return nil, fmt.Errorf("contacts for district %s: %w", leaid, err)
	}

	byEmail := make(map[string]string, len(contacts))
	for _, c := range contacts {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if email == "" {
			continue
		}
		if existing, ok := byEmail[email]; !ok || c.ID < existing {
			byEmail[email] = c.ID
		}
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, email := range emails {
		if id, ok := byEmail[email]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	return ids, nil
}

// uniquePlan returns the plan only when the district belongs to exactly one of the user's plans.
// Multiple plans are ambiguous and yield no suggestion.
func (e *Engine) uniquePlan(ctx context.Context, userID, leaid string) (*domain.TerritoryPlan, error) {
	plans, err := e.dir.PlansByDistrict(ctx, userID, leaid)
	if err != nil {
		return nil, fmt.Errorf("plans for district %s: %w", leaid, err)
	}
	if len(plans) != 1 {
		return nil, nil
	}
	return &plans[0], nil
}

func tier(policy TierPolicy, source districtSource, contacts int, keywordHit bool) domain.Confidence {
	switch {
	case source == sourceExact && contacts >= policy.HighMinContacts:
		return domain.ConfidenceHigh
	case source == sourceExact:
		return domain.ConfidenceMedium
	case source == sourceFuzzy && contacts > 0:
		return domain.ConfidenceMedium
	case source == sourceFuzzy:
		return domain.ConfidenceLow
	case keywordHit && policy.KeywordOnlyIsLow:
		return domain.ConfidenceLow
	}
	return domain.ConfidenceNone
}

func containsAll(set map[string]struct{}, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
