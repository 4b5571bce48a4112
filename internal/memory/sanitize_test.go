package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_MasksPatterns(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "reach me at jane.doe@example.com please", "reach me at [EMAIL] please"},
		{"phone", "call 415-555-0134 x", "call [PHONE] x"},
		{"international phone", "office: +44 20 7946 0958.", "office: [PHONE]."},
		{"ssn", "ssn is 123-45-6789 on file", "ssn is [SSN] on file"},
		{"honorific name", "Dr. Emily Watson approved the mockup", "[NAME] approved the mockup"},
		{"honorific no dot", "met with Mrs Johnson today", "met with [NAME] today"},
		{"multiple", "Mr. Lee (lee@corp.io) asked about it", "[NAME] ([EMAIL]) asked about it"},
		{"clean text", "prefers dark minimal layouts", "prefers dark minimal layouts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"reach me at jane.doe@example.com or 415-555-0134",
		"Dr. Emily Watson, ssn 123-45-6789",
		"[EMAIL] already masked",
		"plain text with no identifiers",
		"",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestStripIdentifyingMetadata(t *testing.T) {
	md := map[string]string{
		"userId":      "u-1",
		"userEmail":   "u@example.com",
		"clientName":  "Acme",
		"projectName": "Homepage Redesign",
		"industry":    "ecommerce",
	}

	stripped := StripIdentifyingMetadata(md)

	assert.Equal(t, map[string]string{"industry": "ecommerce"}, stripped)
	// Original untouched
	assert.Len(t, md, 5)
}

func TestStripIdentifyingMetadata_Nil(t *testing.T) {
	assert.Nil(t, StripIdentifyingMetadata(nil))
}

func TestInitialRelevance(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category Category
		want     float64
	}{
		{"base", "short", CategoryDesignPreference, 0.5},
		{"length bonus", "a medium length observation", CategoryDesignPreference, 0.6},
		{"successful output", "the homepage converted 40% better", CategorySuccessfulOutput, 0.8},
		{"tone preference", "client prefers playful informal copy", CategoryTonePreference, 0.75},
		{"capped", "the homepage converted 40% better and kept converting", CategorySuccessfulOutput, 0.8},
		{"short successful output", "ok", CategorySuccessfulOutput, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InitialRelevance(tt.content, tt.category), 1e-9)
		})
	}
}

func TestInitialRelevance_NeverExceedsCap(t *testing.T) {
	for _, cat := range []Category{CategorySuccessfulOutput, CategoryTonePreference, CategoryClientFeedback} {
		got := InitialRelevance("a nicely sized observation about the client", cat)
		assert.LessOrEqual(t, got, 0.9)
		assert.GreaterOrEqual(t, got, 0.5)
	}
}

func TestPromotable(t *testing.T) {
	// Both gates required, never either alone
	assert.True(t, Promotable(CategorySuccessfulOutput, true))
	assert.True(t, Promotable(CategoryInteractionPattern, true))
	assert.True(t, Promotable(CategoryClientFeedback, true))

	assert.False(t, Promotable(CategorySuccessfulOutput, false))
	assert.False(t, Promotable(CategoryDesignPreference, true))
	assert.False(t, Promotable(CategoryTonePreference, true))
	assert.False(t, Promotable(CategoryDesignPreference, false))
}
