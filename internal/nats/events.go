package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamMemory   = "RECALL_MEMORY"
	StreamInsights = "RECALL_INSIGHTS"
)

// Subject constants.
const (
	SubjectMemoryChangedPrefix = "recall.memory.changed" // recall.memory.changed.{category}
	SubjectInsightsReady       = "recall.insights.ready"
)

// Change event types mirroring the persistent store's operations.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// MemoryChangeEvent is published whenever a global-tier record is inserted
// or its relevance is adjusted. The insight notifier consumes these.
type MemoryChangeEvent struct {
	Event     string    `json:"event"` // insert, update, delete
	RecordID  uuid.UUID `json:"record_id"`
	Scope     string    `json:"scope"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// InsightEvent is published when a pattern analysis run completes.
type InsightEvent struct {
	ResultID   uuid.UUID `json:"result_id"`
	Category   string    `json:"category"`
	Insights   []string  `json:"insights"`
	SampleSize int       `json:"sample_size"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}
