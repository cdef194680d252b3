package model

// Wire formats exchanged with the discovery source and the verification
// backend. Field names follow the backend's JSON.

// ClaimPayload is one raw claim inside a discovered block
type ClaimPayload struct {
	Name  string `json:"name"`
	Claim string `json:"claim"`
}

// BlockPayload is one block in a discovery snapshot
type BlockPayload struct {
	BlockID   string         `json:"block_id"`
	Timestamp string         `json:"timestamp"`
	Info      string         `json:"info,omitempty"`
	Headline  string         `json:"headline,omitempty"`
	Claims    []ClaimPayload `json:"claims"`
}

// FreshSubmission asks the backend to verify a batch of new claims
type FreshSubmission struct {
	BlockID string         `json:"block_id"`
	Claims  []ClaimPayload `json:"claims"`
	Target  string         `json:"episode_key,omitempty"`
}

// ResendSubmission asks the backend to overwrite a published result.
// The backend matches by ResultID first, then by OriginalClaim, then by Claim.
type ResendSubmission struct {
	Name          string `json:"name"`
	Claim         string `json:"claim"`
	ResultID      *int64 `json:"fact_check_id,omitempty"`
	OriginalClaim string `json:"original_claim,omitempty"`
	Target        string `json:"episode_key,omitempty"`
}

// TextBlockRequest carries article text for local claim extraction.
// HTML is used when Text is empty; its visible text is extracted first.
type TextBlockRequest struct {
	Text            string `json:"text"`
	HTML            string `json:"html,omitempty"`
	Headline        string `json:"headline"`
	PublicationDate string `json:"publication_date,omitempty"`
	SourceID        string `json:"source_id,omitempty"`
}

// TextBlockResponse acknowledges an accepted text block
type TextBlockResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	SourceID string `json:"source_id"`
}

// SubmissionResponse is the backend's acknowledgement of a submission
type SubmissionResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ClaimsCount int    `json:"claims_count,omitempty"`
	BlockID     string `json:"block_id,omitempty"`
}

// ErrorResponse is the backend's error body
type ErrorResponse struct {
	Detail string `json:"detail"`
}
