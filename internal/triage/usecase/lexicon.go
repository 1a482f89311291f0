package usecase

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LexiconConfig is the on-disk shape of the classifier's word lists. All
// fields are optional; empty lists fall back to the built-in defaults.
type LexiconConfig struct {
	Urgency              []string `yaml:"urgency"`
	NoiseCategories      []string `yaml:"noise_categories"`
	NoiseSubjectPatterns []string `yaml:"noise_subject_patterns"`
	QuickWin             []string `yaml:"quick_win"`
}

// RuleSet is the compiled form used by the cascade.
type RuleSet struct {
	urgency         []string
	noiseCategories map[string]struct{}
	noisePatterns   []*regexp.Regexp
	quickWin        []string
}

func defaultLexiconConfig() LexiconConfig {
	return LexiconConfig{
		Urgency: []string{
			"complaint", "refund", "chargeback", "dispute", "legal", "lawyer",
			"lawsuit", "cancel my", "cancellation", "unacceptable", "escalate",
			"urgent", "asap", "furious", "terrible service",
		},
		NoiseCategories: []string{
			"marketing", "receipt", "automated", "newsletter", "notification",
			"promotion", "spam",
		},
		NoiseSubjectPatterns: []string{
			`(?i)\breceipt\b`,
			`(?i)order (confirmation|confirmed|#?\d+)`,
			`(?i)\binvoice\b`,
			`(?i)unsubscribe`,
			`(?i)password reset`,
			`(?i)verify your (email|account)`,
			`(?i)(shipping|delivery) (update|notification)`,
			`(?i)\bnewsletter\b`,
			`(?i)no.?reply`,
			`(?i)your (subscription|payment) (was|has been)`,
		},
		QuickWin: []string{
			"pricing", "price", "cost", "how much", "availability", "available",
			"hours", "are you open", "schedule", "quick question", "booking",
			"appointment", "do you offer",
		},
	}
}

// DefaultRuleSet compiles the built-in lexicons.
func DefaultRuleSet() *RuleSet {
	rs, err := compileRuleSet(defaultLexiconConfig())
	if err != nil {
		// Built-in patterns are tested; this cannot happen at runtime.
		panic(err)
	}
	return rs
}

// LoadRuleSet reads a YAML lexicon file, filling missing lists from the
// defaults. An empty path returns the defaults.
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRuleSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}
	cfg := defaultLexiconConfig()
	var overlay LexiconConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse lexicon file: %w", err)
	}
	if len(overlay.Urgency) > 0 {
		cfg.Urgency = overlay.Urgency
	}
	if len(overlay.NoiseCategories) > 0 {
		cfg.NoiseCategories = overlay.NoiseCategories
	}
	if len(overlay.NoiseSubjectPatterns) > 0 {
		cfg.NoiseSubjectPatterns = overlay.NoiseSubjectPatterns
	}
	if len(overlay.QuickWin) > 0 {
		cfg.QuickWin = overlay.QuickWin
	}
	return compileRuleSet(cfg)
}

func compileRuleSet(cfg LexiconConfig) (*RuleSet, error) {
	rs := &RuleSet{
		noiseCategories: make(map[string]struct{}, len(cfg.NoiseCategories)),
	}
	for _, w := range cfg.Urgency {
		rs.urgency = append(rs.urgency, strings.ToLower(w))
	}
	for _, c := range cfg.NoiseCategories {
		rs.noiseCategories[strings.ToLower(c)] = struct{}{}
	}
	for _, p := range cfg.NoiseSubjectPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid noise pattern %q: %w", p, err)
		}
		rs.noisePatterns = append(rs.noisePatterns, re)
	}
	for _, w := range cfg.QuickWin {
		rs.quickWin = append(rs.quickWin, strings.ToLower(w))
	}
	return rs, nil
}

func containsAny(text string, words []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}

func (rs *RuleSet) matchNoisePattern(subject string) (string, bool) {
	for _, re := range rs.noisePatterns {
		if re.MatchString(subject) {
			return re.String(), true
		}
	}
	return "", false
}
