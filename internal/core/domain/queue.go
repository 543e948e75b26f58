package domain

import "time"

// QueueItem is one pending document payload keyed by document identity.
type QueueItem struct {
	Key        string
	DocumentID int64
	Extension  string
	EnqueuedAt time.Time
}

// EnqueueAck acknowledges a queued document.
type EnqueueAck struct {
	ID     int64          `json:"id"`
	Status DocumentStatus `json:"status"`
}

// ProcessOutcome is the terminal result of one worker pass over a queue item.
type ProcessOutcome string

const (
	OutcomeCompleted ProcessOutcome = "completed"
	OutcomeFailed    ProcessOutcome = "failed"
	OutcomeDuplicate ProcessOutcome = "duplicate"
	OutcomeSkipped   ProcessOutcome = "skipped"
	OutcomeDiscarded ProcessOutcome = "discarded"
	// OutcomeDeferred means no terminal status was recorded; the item stays queued.
	OutcomeDeferred ProcessOutcome = "deferred"
)
