package model

import (
	"fmt"
	"strings"
	"time"
)

// ClaimID identifies a claim for its whole editorial life.
//
// Snapshot-derived claims use the composite key "<block id>#<position>",
// which is stable across repeated polls of the same block. Claims
// manufactured locally (resends) use "resend:<uuid>". Block ids belong to
// the feed, so the id alone never decides where a claim came from; that is
// Claim.Origin's job.
type ClaimID string

const manufacturedPrefix = "resend:"

// SnapshotID builds the identity of the claim at position pos of block blockID.
func SnapshotID(blockID string, pos int) ClaimID {
	return ClaimID(fmt.Sprintf("%s#%d", blockID, pos))
}

// ManufacturedID builds a resend identity from a unique token.
func ManufacturedID(token string) ClaimID {
	return ClaimID(manufacturedPrefix + token)
}

// Origin tells where a claim came from
type Origin string

const (
	OriginSnapshot     Origin = "snapshot"     // Derived from a discovery poll
	OriginManufactured Origin = "manufactured" // Created locally by a resend
)

// Claim is a single assertion under editorial review
type Claim struct {
	ID        ClaimID   `json:"id"`
	Name      string    `json:"name"`           // Speaker
	Text      string    `json:"claim"`          // Claim text
	BlockID   string    `json:"block_id"`       // Block the claim was discovered in
	Position  int       `json:"position"`       // Index within the block
	Timestamp time.Time `json:"timestamp"`      // Discovery time
	Info      string    `json:"info,omitempty"` // Block info or headline
	Origin    Origin    `json:"origin"`         // snapshot or manufactured

	// Resend back-references, set only on manufactured claims
	ResendOf     ClaimID `json:"resend_of,omitempty"`
	ResultID     *int64  `json:"result_id,omitempty"`
	OriginalText string  `json:"original_claim,omitempty"`
}

// Manufactured reports whether the claim was created locally rather than
// derived from a discovery snapshot
func (c Claim) Manufactured() bool {
	return c.Origin == OriginManufactured
}

// IsResend reports whether dispatching this claim should overwrite a
// previously published result instead of creating a new one.
func (c Claim) IsResend() bool {
	return c.ResendOf != ""
}

// Field names accepted by pending edits
type Field string

const (
	FieldName  Field = "name"
	FieldClaim Field = "claim"
)

// ParseField validates an editable field name
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case FieldName:
		return FieldName, nil
	case FieldClaim, "text":
		return FieldClaim, nil
	default:
		return "", NewValidationError("field", s, "must be one of: name, claim")
	}
}

// Override holds the local edits recorded for a pending claim.
// A nil pointer means the field is untouched.
type Override struct {
	Name *string `json:"name,omitempty"`
	Text *string `json:"claim,omitempty"`
}

// Set returns a copy of o with field set to value
func (o Override) Set(field Field, value string) Override {
	v := value
	switch field {
	case FieldName:
		o.Name = &v
	case FieldClaim:
		o.Text = &v
	}
	return o
}

// Apply returns c with the overridden fields replaced
func (o Override) Apply(c Claim) Claim {
	if o.Name != nil {
		c.Name = *o.Name
	}
	if o.Text != nil {
		c.Text = *o.Text
	}
	return c
}

// IsEmpty reports whether the override changes nothing
func (o Override) IsEmpty() bool {
	return o.Name == nil && o.Text == nil
}

// Diff returns the override that turns base into edited, or an empty
// override if they carry the same name and text.
func Diff(base, edited Claim) Override {
	var o Override
	if edited.Name != base.Name {
		o = o.Set(FieldName, edited.Name)
	}
	if edited.Text != base.Text {
		o = o.Set(FieldClaim, edited.Text)
	}
	return o
}

// Block is a discovery-time grouping of claims
type Block struct {
	ID        string    `json:"block_id"`
	Timestamp time.Time `json:"timestamp"`
	Info      string    `json:"info,omitempty"`
	Claims    []Claim   `json:"claims"`
}

// BlockFromPayload derives identities for every member claim of a raw block
func BlockFromPayload(id string, ts time.Time, info string, raw []ClaimPayload) Block {
	b := Block{ID: id, Timestamp: ts, Info: info, Claims: make([]Claim, 0, len(raw))}
	for i, c := range raw {
		b.Claims = append(b.Claims, Claim{
			ID:        SnapshotID(id, i),
			Name:      c.Name,
			Text:      c.Claim,
			BlockID:   id,
			Position:  i,
			Timestamp: ts,
			Info:      info,
			Origin:    OriginSnapshot,
		})
	}
	return b
}
