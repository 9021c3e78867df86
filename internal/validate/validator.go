// Package validate implements the plate Validator (§4.5 of SPEC_FULL.md):
// normalization, blacklist rejection, length checks, format-registry
// matching, per-position correction, and confidence scoring.
package validate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/platerecon/platerecon/internal/platefmt"
	"github.com/platerecon/platerecon/pkg/models"
)

// blacklist holds strings that are syntactically plate-shaped but are
// known non-plate artifacts (country/union labels stamped on the plate).
var blacklist = map[string]bool{
	"BRASIL":   true,
	"BRAZIL":   true,
	"MERCOSUL": true,
	"MERCOSUR": true,
	"BR":       true,
}

const (
	minPlateLength = 6
	maxPlateLength = 8
)

// Validator checks an OCR candidate string against the format registry and
// produces a ValidationResult with correction suggestions and a confidence
// score.
type Validator struct {
	registry *platefmt.Registry
}

// NewValidator builds a Validator backed by registry.
func NewValidator(registry *platefmt.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs the full §4.5 policy for one (candidate, ocr_conf) pair,
// region-restricted when region is non-empty: normalize -> blacklist check
// -> length check -> registry match -> corrections -> confidence, with
// ocrConf folded into every confidence this function returns.
func (v *Validator) Validate(candidate string, ocrConf float64, region string) models.ValidationResult {
	normalized := normalize(candidate)

	if isBlacklisted(normalized) {
		return models.ValidationResult{IsValid: false, Text: normalized, OriginalText: candidate}
	}

	if !isValidLength(normalized) {
		return models.ValidationResult{
			IsValid:      false,
			Text:         normalized,
			OriginalText: candidate,
			Confidence:   0.3 * ocrConf,
		}
	}

	match, ok := matchFor(v.registry, normalized, region)
	if !ok {
		return models.ValidationResult{
			IsValid:      false,
			Text:         normalized,
			OriginalText: candidate,
			Confidence:   noMatchConfidence(normalized, ocrConf),
		}
	}

	if match.IsExact {
		return models.ValidationResult{
			IsValid:      true,
			Text:         normalized,
			OriginalText: candidate,
			MatchScore:   match.Score,
			Region:       regionOf(match.Rule),
			FormatName:   ruleNameOf(match.Rule),
			Confidence:   ocrConf,
		}
	}

	corrected, corrections := applyCorrections(match)
	if matchesPattern(match.Rule, corrected) {
		confidence := calculateConfidence(ocrConf, match.Score, len(corrections))
		return models.ValidationResult{
			IsValid:      true,
			Text:         corrected,
			OriginalText: candidate,
			MatchScore:   match.Score,
			Corrections:  corrections,
			Region:       regionOf(match.Rule),
			FormatName:   ruleNameOf(match.Rule),
			Confidence:   confidence,
		}
	}

	return models.ValidationResult{
		IsValid:      false,
		Text:         normalized,
		OriginalText: candidate,
		MatchScore:   match.Score,
		Confidence:   noMatchConfidence(normalized, ocrConf),
	}
}

// ValidateBatch validates every (candidate, ocrConf) pair, region-restricted
// when region is non-empty, and returns the results sorted by (is_valid
// desc, confidence desc), mirroring the Python original's validate_batch
// ordering.
func (v *Validator) ValidateBatch(candidates []string, ocrConfs []float64, region string) []models.ValidationResult {
	results := make([]models.ValidationResult, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, v.Validate(c, ocrConfs[i], region))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].IsValid != results[j].IsValid {
			return results[i].IsValid
		}
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// matchFor dispatches to the region-restricted or unrestricted registry
// match depending on whether a region was requested.
func matchFor(registry *platefmt.Registry, normalized, region string) (platefmt.Match, bool) {
	if region == "" {
		return registry.Match(normalized)
	}
	return registry.MatchWithRegion(normalized, region)
}

// matchesPattern reports whether text satisfies rule's regular expression,
// the step-5 gate deciding whether a correction fully fixed the candidate.
func matchesPattern(rule platefmt.Rule, text string) bool {
	if rule == nil {
		return false
	}
	return regexp.MustCompile(rule.Pattern()).MatchString(text)
}

// noMatchConfidence implements step 6: a mixed letter/digit candidate that
// never matched or corrected into a valid plate still carries some signal;
// anything else (all letters, all digits, empty) carries none.
func noMatchConfidence(normalized string, ocrConf float64) float64 {
	if hasLetterAndDigit(normalized) {
		return 0.5 * ocrConf
	}
	return 0
}

func hasLetterAndDigit(s string) bool {
	var hasLetter, hasDigit bool
	for i := 0; i < len(s); i++ {
		if isLetter(s[i]) {
			hasLetter = true
		} else if isDigit(s[i]) {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

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

func isBlacklisted(normalized string) bool {
	return blacklist[normalized]
}

func isValidLength(normalized string) bool {
	return len(normalized) >= minPlateLength && len(normalized) <= maxPlateLength
}

func ruleNameOf(rule platefmt.Rule) string {
	if rule == nil {
		return ""
	}
	return rule.Name()
}

func regionOf(rule platefmt.Rule) string {
	if rule == nil {
		return ""
	}
	return rule.Region()
}

// applyCorrections walks every position of the normalized candidate and
// swaps in the rule's suggested character where its class disagrees with
// the expected one, recording each substitution.
func applyCorrections(m platefmt.Match) (string, []models.Correction) {
	rule := m.Rule
	candidate := m.Normalized
	length := rule.Length()

	out := make([]byte, 0, length)
	var corrections []models.Correction

	for pos := 0; pos < length; pos++ {
		var original byte = '_'
		if pos < len(candidate) {
			original = candidate[pos]
		}
		if corrected, ok := rule.Correct(original, pos); ok {
			corrections = append(corrections, models.Correction{
				Position:  pos,
				Original:  string(original),
				Corrected: string(corrected),
				Reason:    "character class mismatch at expected position",
			})
			out = append(out, corrected)
		} else {
			out = append(out, original)
		}
	}
	return string(out), corrections
}

// calculateConfidence implements step 5: ocr_conf times the uncorrected
// soft match score, minus 0.05 per correction applied, floored at 0.
// matchScore is always the soft score from the pre-correction match --
// never recomputed against the corrected text (§9's pinned resolution).
func calculateConfidence(ocrConf, matchScore float64, numCorrections int) float64 {
	c := ocrConf*matchScore - 0.05*float64(numCorrections)
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}
