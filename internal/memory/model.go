package memory

import (
	"time"

	"github.com/google/uuid"
)

// Scope identifies which tier owns a record.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Category classifies what kind of observation a record captures.
type Category string

const (
	CategoryDesignPreference   Category = "design_preference"
	CategoryTonePreference     Category = "tone_preference"
	CategoryInteractionPattern Category = "interaction_pattern"
	CategoryLayoutPreference   Category = "layout_preference"
	CategoryColorPreference    Category = "color_preference"
	CategoryProjectContext     Category = "project_context"
	CategoryClientFeedback     Category = "client_feedback"
	CategorySuccessfulOutput   Category = "successful_output"
)

var validCategories = map[Category]bool{
	CategoryDesignPreference:   true,
	CategoryTonePreference:     true,
	CategoryInteractionPattern: true,
	CategoryLayoutPreference:   true,
	CategoryColorPreference:    true,
	CategoryProjectContext:     true,
	CategoryClientFeedback:     true,
	CategorySuccessfulOutput:   true,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return validCategories[c]
}

// learnableCategories are the only categories eligible for promotion to the
// global tier. Consent is still required on top of this.
var learnableCategories = map[Category]bool{
	CategorySuccessfulOutput:   true,
	CategoryInteractionPattern: true,
	CategoryClientFeedback:     true,
}

// PlatformLearnable reports whether records of this category may be shared
// into the global tier (given consent).
func (c Category) PlatformLearnable() bool {
	return learnableCategories[c]
}

// Record is one observation in a tier. RelevanceScore and Frequency are only
// meaningful for global-scope records.
type Record struct {
	ID             uuid.UUID         `json:"id"`
	Scope          Scope             `json:"scope"`
	OwnerID        string            `json:"owner_id,omitempty"`
	Content        string            `json:"content"`
	Category       Category          `json:"category"`
	Metadata       map[string]string `json:"metadata"`
	RelevanceScore float64           `json:"relevance_score,omitempty"`
	Frequency      int               `json:"frequency,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// QueryOptions narrows a tier query. Zero values mean "no filter".
type QueryOptions struct {
	Categories         []Category
	Limit              int
	From               time.Time
	To                 time.Time
	MetadataFilters    map[string]string
	RelevanceThreshold float64 // global tier only
}

// DefaultQueryLimit applies when QueryOptions.Limit is unset.
const DefaultQueryLimit = 50

// ContextualLimit caps the global tier's contribution to a contextual read
// so platform-wide noise cannot drown out user-specific memories.
const ContextualLimit = 20

// Relevance thresholds by read path.
const (
	DirectGlobalThreshold = 0.5
	MergedSearchThreshold = 0.2
	PatternThreshold      = 0.3
)

// StoreRequest is the orchestrator's write input.
type StoreRequest struct {
	UserID           string
	ProjectID        string
	Content          string
	Category         Category
	Metadata         map[string]string
	ShareAnonymously bool
	WithEmbedding    bool
}

// StoreResult reports which tier writes succeeded. UserRecord is always set
// on success; the others are best-effort.
type StoreResult struct {
	UserRecord    *Record `json:"user_record"`
	ProjectRecord *Record `json:"project_record,omitempty"`
	GlobalRecord  *Record `json:"global_record,omitempty"`
}

// ContextBundle is the three-tier result of a contextual read.
type ContextBundle struct {
	UserMemories    []Record `json:"user_memories"`
	ProjectMemories []Record `json:"project_memories"`
	GlobalMemories  []Record `json:"global_memories"`
}

// ExactMatches groups structured-filter query hits per tier.
type ExactMatches struct {
	User    []Record `json:"user"`
	Project []Record `json:"project"`
	Global  []Record `json:"global"`
}
