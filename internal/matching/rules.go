package matching

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordRule maps title keywords to an activity type.
type KeywordRule struct {
	Type     string   `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// TierPolicy holds the tunable thresholds of confidence tiering.
type TierPolicy struct {
	// HighMinContacts is the number of matched contacts an exact district needs for "high".
	HighMinContacts int `yaml:"high_min_contacts"`
	// KeywordOnlyIsLow grades a suggestion carrying only a keyword-derived type as "low"
	// instead of "none".
	KeywordOnlyIsLow bool `yaml:"keyword_only_is_low"`
}

// Rules configures the match engine.
type Rules struct {
	DefaultActivityType string        `yaml:"default_activity_type"`
	ActivityKeywords    []KeywordRule `yaml:"activity_keywords"`
	FreeMailDomains     []string      `yaml:"free_mail_domains"`
	MinFuzzyNameLength  int           `yaml:"min_fuzzy_name_length"`
	MaxFuzzyCandidates  int           `yaml:"max_fuzzy_candidates"`
	Tiers               TierPolicy    `yaml:"tiers"`
}

// DefaultRules returns the compiled-in rule set.
func DefaultRules() Rules {
	return Rules{
		DefaultActivityType: "outreach",
		ActivityKeywords: []KeywordRule{
			{Type: "demo", Keywords: []string{"demo", "demonstration", "walkthrough"}},
			{Type: "discovery_call", Keywords: []string{"discovery", "intro call", "introduction"}},
			{Type: "check_in", Keywords: []string{"check-in", "check in", "checkin"}},
			{Type: "renewal_meeting", Keywords: []string{"renewal", "contract review"}},
			{Type: "proposal_review", Keywords: []string{"proposal", "pricing", "quote"}},
			{Type: "training", Keywords: []string{"training", "onboarding", "kickoff", "kick-off"}},
			{Type: "conference", Keywords: []string{"conference", "summit", "expo"}},
			{Type: "webinar", Keywords: []string{"webinar"}},
		},
		FreeMailDomains: []string{
			"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com", "outlook.com",
			"live.com", "aol.com", "icloud.com", "me.com", "msn.com", "protonmail.com",
		},
		MinFuzzyNameLength: 4,
		MaxFuzzyCandidates: 50,
		Tiers: TierPolicy{
			HighMinContacts:  1,
			KeywordOnlyIsLow: true,
		},
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read match rules: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse match rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks the rule set for values the engine cannot work with.
func (r Rules) Validate() error {
	if strings.TrimSpace(r.DefaultActivityType) == "" {
		return fmt.Errorf("match rules: default_activity_type is required")
	}
	if r.Tiers.HighMinContacts < 1 {
		return fmt.Errorf("match rules: tiers.high_min_contacts must be >= 1")
	}
	if r.MinFuzzyNameLength < 1 {
		return fmt.Errorf("match rules: min_fuzzy_name_length must be >= 1")
	}
	for _, rule := range r.ActivityKeywords {
		if strings.TrimSpace(rule.Type) == "" || len(rule.Keywords) == 0 {
			return fmt.Errorf("match rules: keyword rule needs a type and keywords")
		}
	}
	return nil
}
