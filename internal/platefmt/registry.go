package platefmt

import (
	"regexp"
	"strings"
)

// Registry holds every known Rule and matches/scores a candidate string
// against all of them, or against a single region when the caller already
// knows the expected region (§4.5).
type Registry struct {
	rules      []Rule
	compiled   map[string]*regexp.Regexp
	byRegion   map[string][]Rule
}

// NewDefaultRegistry builds a Registry pre-populated with every rule this
// system ships (currently BR_MERCOSUL and BR_OLD).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBrazilMercosulRule())
	r.Register(NewBrazilOldRule())
	return r
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		compiled: make(map[string]*regexp.Regexp),
		byRegion: make(map[string][]Rule),
	}
}

// Register adds a rule to the registry, compiling its pattern once.
func (reg *Registry) Register(rule Rule) {
	reg.rules = append(reg.rules, rule)
	reg.compiled[rule.Name()] = regexp.MustCompile(rule.Pattern())
	reg.byRegion[rule.Region()] = append(reg.byRegion[rule.Region()], rule)
}

// Rules returns every registered rule, in registration order.
func (reg *Registry) Rules() []Rule {
	return reg.rules
}

// Match is the result of scoring a candidate string against one rule.
type Match struct {
	Rule       Rule
	Normalized string
	IsExact    bool
	Score      float64
}

// normalize upper-cases and strips anything that is not A-Z or 0-9, mirroring
// the Python original's PlateFormatRegistry._normalize.
func normalize(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Match scores candidate against every registered rule and returns the
// best-scoring Match, or false if the registry has no rules.
func (reg *Registry) Match(candidate string) (Match, bool) {
	return reg.matchAgainst(candidate, reg.rules)
}

// MatchWithRegion restricts matching to rules registered under region.
func (reg *Registry) MatchWithRegion(candidate, region string) (Match, bool) {
	return reg.matchAgainst(candidate, reg.byRegion[region])
}

func (reg *Registry) matchAgainst(candidate string, rules []Rule) (Match, bool) {
	if len(rules) == 0 {
		return Match{}, false
	}
	normalized := normalize(candidate)

	var best Match
	found := false
	for _, rule := range rules {
		m := reg.scoreRule(rule, normalized)
		if !found || m.Score > best.Score {
			best = m
			found = true
		}
	}
	return best, found
}

func (reg *Registry) scoreRule(rule Rule, normalized string) Match {
	re := reg.compiled[rule.Name()]
	if re != nil && re.MatchString(normalized) {
		return Match{Rule: rule, Normalized: normalized, IsExact: true, Score: 1.0}
	}
	return Match{
		Rule:       rule,
		Normalized: normalized,
		IsExact:    false,
		Score:      calculateMatchScore(rule, normalized),
	}
}

// calculateMatchScore implements the soft-match heuristic from the Python
// original: length_score*0.3 + position_score*0.7. length_score is
// max(0, 1 − 0.2·|len−expected|), returning 0 outright once the length
// diverges by more than 2; position_score is the fraction of the
// overlapping prefix (min(len, expected)) whose observed character class
// agrees with the rule's expected class at that position.
func calculateMatchScore(rule Rule, normalized string) float64 {
	length := rule.Length()
	if length == 0 {
		return 0
	}

	lengthDiff := length - len(normalized)
	if lengthDiff < 0 {
		lengthDiff = -lengthDiff
	}
	if lengthDiff > 2 {
		return 0
	}
	lengthScore := 1.0 - 0.2*float64(lengthDiff)

	overlap := length
	if len(normalized) < overlap {
		overlap = len(normalized)
	}
	if overlap == 0 {
		return 0
	}

	matches := 0
	for pos := 0; pos < overlap; pos++ {
		expected, ok := rule.PositionType(pos)
		if !ok {
			continue
		}
		c := normalized[pos]
		switch expected {
		case PositionLetter:
			if isLetter(c) {
				matches++
			}
		case PositionDigit:
			if isDigit(c) {
				matches++
			}
		}
	}
	positionScore := float64(matches) / float64(overlap)

	return lengthScore*0.3 + positionScore*0.7
}
