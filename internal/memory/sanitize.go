package memory

import "regexp"

// Masking patterns, applied in order. The SSN pattern runs before the phone
// pattern so "123-45-6789" becomes [SSN], not [PHONE]. Placeholders contain
// no digits, no "@" and no honorific, which keeps Sanitize idempotent.
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	namePattern  = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`)
)

// Sanitize masks identifying text patterns with fixed placeholder tokens.
// It is a pure transform: deterministic, idempotent, no learning. False
// positives and false negatives are both acceptable; the metadata key strip
// in the orchestrator is the second line of defense.
func Sanitize(content string) string {
	out := emailPattern.ReplaceAllString(content, "[EMAIL]")
	out = ssnPattern.ReplaceAllString(out, "[SSN]")
	out = phonePattern.ReplaceAllString(out, "[PHONE]")
	out = namePattern.ReplaceAllString(out, "[NAME]")
	return out
}

// identifyingMetadataKeys are removed from metadata unconditionally before a
// record is written to the global tier, even if Sanitize missed them.
var identifyingMetadataKeys = []string{"userId", "userEmail", "clientName", "projectName"}

// StripIdentifyingMetadata returns a copy of md without identifying keys.
// A nil map stays nil.
func StripIdentifyingMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	for _, k := range identifyingMetadataKeys {
		delete(out, k)
	}
	return out
}

// InitialRelevance scores a freshly promoted global record. Base 0.5, small
// bonus for mid-length content, larger bonuses for the categories that have
// historically produced useful platform patterns. Capped at 0.9 so nothing
// starts out ranked above records with real positive feedback.
func InitialRelevance(content string, category Category) float64 {
	score := 0.5
	if l := len(content); l > 10 && l < 1000 {
		score += 0.1
	}
	switch category {
	case CategorySuccessfulOutput:
		score += 0.2
	case CategoryTonePreference:
		score += 0.15
	}
	if score > 0.9 {
		score = 0.9
	}
	return score
}

// Promotable reports whether a record may be written to the global tier.
// Both conditions are required: the category gate and the caller's consent.
func Promotable(category Category, shareAnonymously bool) bool {
	return shareAnonymously && category.PlatformLearnable()
}
