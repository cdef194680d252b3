package model

import "time"

// DispatchKind classifies how a staged claim is submitted
type DispatchKind string

const (
	DispatchFresh  DispatchKind = "fresh"  // Brand-new verification request
	DispatchResend DispatchKind = "resend" // Overwrite of a published result
)

// KindOf classifies a claim for dispatch
func KindOf(c Claim) DispatchKind {
	if c.IsResend() {
		return DispatchResend
	}
	return DispatchFresh
}

// StagedItem is an approved claim waiting for dispatch.
// Claim is frozen at staging time.
type StagedItem struct {
	Claim    Claim        `json:"claim"`
	StagedAt time.Time    `json:"staged_at"`
	Kind     DispatchKind `json:"kind"`

	// Set after a failed dispatch; cleared on unstage or success
	LastError  string     `json:"last_error,omitempty"`
	FailedAt   *time.Time `json:"failed_at,omitempty"`
	InFlight   bool       `json:"in_flight"`
	NeedsRetry bool       `json:"needs_retry"` // Failed resend, only Retry dispatches it
}

// SentRecord is the historical record of a dispatched claim
type SentRecord struct {
	Claim    Claim        `json:"claim"`
	SentAt   time.Time    `json:"sent_at"`
	Kind     DispatchKind `json:"kind"`
	ResultID *int64       `json:"result_id,omitempty"` // Published result, once known
	BatchID  string       `json:"batch_id,omitempty"`  // Synthetic block id of a fresh sub-batch
}

// PublishedResult is one verdict from the published-results feed
type PublishedResult struct {
	ID          int64     `json:"id"`
	Speaker     string    `json:"sprecher"`
	Claim       string    `json:"behauptung"`
	Consistency string    `json:"consistency"`
	Reasoning   string    `json:"begruendung,omitempty"`
	Sources     []any     `json:"quellen,omitempty"`
	Timestamp   string    `json:"timestamp,omitempty"`
	Target      string    `json:"episode_key,omitempty"`
	FetchedAt   time.Time `json:"-"`
}
