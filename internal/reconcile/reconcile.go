// Package reconcile merges a server-owned discovery snapshot with the
// locally held editorial state into the pending projection.
//
// Reconcile is a pure function: it never mutates its input and the same
// input always yields the same projection, so repeated polls of an
// unchanged snapshot are idempotent.
package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/ppiankov/claimdesk/internal/model"
)

// Set is a set of claim identities
type Set map[model.ClaimID]struct{}

// NewSet builds a set from ids
func NewSet(ids ...model.ClaimID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership
func (s Set) Has(id model.ClaimID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id
func (s Set) Add(id model.ClaimID) {
	s[id] = struct{}{}
}

// Union returns a new set holding every member of sets
func Union(sets ...Set) Set {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make(Set, n)
	for _, s := range sets {
		for id := range s {
			out[id] = struct{}{}
		}
	}
	return out
}

// Input is everything the merge needs
type Input struct {
	// Snapshot is the latest discovery snapshot, in feed order
	Snapshot []model.Block

	// Excluded holds Staged, Discarded and Sent-origin identities
	Excluded Set

	// Overlay holds local edits of pending claims
	Overlay map[model.ClaimID]model.Override

	// Local holds pending claims the snapshot does not own: manufactured
	// resends and snapshot-derived claims returned to Pending after their
	// block left the feed
	Local []model.Claim
}

// BlockView is one block of the grouped pending projection
type BlockView struct {
	ID        string        `json:"block_id"`
	Timestamp time.Time     `json:"timestamp"`
	Info      string        `json:"info,omitempty"`
	Claims    []model.Claim `json:"claims"`
}

// Projection is the pending view derived from one merge
type Projection struct {
	Flat    []model.Claim `json:"pending_flat"`   // Oldest discovery first
	Blocks  []BlockView   `json:"pending_blocks"` // Newest discovery first, never empty
	Skipped []string      `json:"skipped,omitempty"`
}

// IDs returns the identities in the flat projection
func (p Projection) IDs() Set {
	s := make(Set, len(p.Flat))
	for _, c := range p.Flat {
		s.Add(c.ID)
	}
	return s
}

// Find returns the pending claim with the given identity
func (p Projection) Find(id model.ClaimID) (model.Claim, bool) {
	for _, c := range p.Flat {
		if c.ID == id {
			return c, true
		}
	}
	return model.Claim{}, false
}

// Reconcile merges in into a pending projection.
//
// Identity decides everything: an excluded identity is dropped whatever its
// text, and a claim whose text matches an excluded one is kept as long as
// its own identity is not excluded.
func Reconcile(in Input) Projection {
	var (
		proj      Projection
		seen      = make(Set)
		blockSeen = make(map[string]bool, len(in.Snapshot))
		groups    = make(map[string]*BlockView)
	)

	group := func(c model.Claim, ts time.Time, info string) {
		g, ok := groups[c.BlockID]
		if !ok {
			g = &BlockView{ID: c.BlockID, Timestamp: ts, Info: info}
			groups[c.BlockID] = g
		}
		g.Claims = append(g.Claims, c)
	}

	for _, b := range in.Snapshot {
		if blockSeen[b.ID] {
			proj.Skipped = append(proj.Skipped, b.ID)
			continue
		}
		blockSeen[b.ID] = true

		for _, c := range b.Claims {
			if in.Excluded.Has(c.ID) || seen.Has(c.ID) {
				continue
			}
			seen.Add(c.ID)
			c = applyOverlay(in.Overlay, c)
			proj.Flat = append(proj.Flat, c)
			group(c, b.Timestamp, b.Info)
		}
	}

	// Local claims are carried verbatim; the snapshot wins when both hold
	// the same identity.
	for _, c := range in.Local {
		if in.Excluded.Has(c.ID) || seen.Has(c.ID) {
			continue
		}
		seen.Add(c.ID)
		c = applyOverlay(in.Overlay, c)
		proj.Flat = append(proj.Flat, c)
		if !c.Manufactured() {
			group(c, c.Timestamp, c.Info)
		}
	}

	slices.SortStableFunc(proj.Flat, compareClaims)

	proj.Blocks = make([]BlockView, 0, len(groups))
	for _, g := range groups {
		slices.SortStableFunc(g.Claims, func(a, b model.Claim) int {
			return cmp.Compare(a.Position, b.Position)
		})
		proj.Blocks = append(proj.Blocks, *g)
	}
	slices.SortFunc(proj.Blocks, func(a, b BlockView) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if proj.Flat == nil {
		proj.Flat = []model.Claim{}
	}
	return proj
}

func applyOverlay(overlay map[model.ClaimID]model.Override, c model.Claim) model.Claim {
	if o, ok := overlay[c.ID]; ok {
		return o.Apply(c)
	}
	return c
}

// compareClaims orders by discovery time, then by block and position so
// that claims sharing a timestamp keep a deterministic order.
func compareClaims(a, b model.Claim) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BlockID, b.BlockID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
