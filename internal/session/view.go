package session

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/ppiankov/claimdesk/internal/dispatch"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/reconcile"
)

// Signal is the connectivity state of one feed. Errors here never affect
// the editorial partitions.
type Signal struct {
	Feed        string     `json:"feed"`
	OK          bool       `json:"ok"`
	Timeout     bool       `json:"timeout,omitempty"`
	Error       string     `json:"error,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// DispatchSummary describes the last finished dispatch
type DispatchSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
}

func summarize(r dispatch.Report) *DispatchSummary {
	s := &DispatchSummary{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Sent:       r.Succeeded(),
		Failed:     r.Failed(),
	}
	seen := make(map[string]bool)
	for _, o := range r.Outcomes {
		if o.Err == nil || seen[o.Err.Error()] {
			continue
		}
		seen[o.Err.Error()] = true
		s.Errors = append(s.Errors, o.Err.Error())
	}
	return s
}

// View is a read-only copy of the session state for the display side
type View struct {
	PendingFlat   []model.Claim         `json:"pending_flat"`
	PendingBlocks []reconcile.BlockView `json:"pending_blocks"`
	Staged        []model.StagedItem    `json:"staged"`
	Discarded     []DiscardedItem       `json:"discarded"`
	Sent          []model.SentRecord    `json:"sent"`
	Connectivity  map[string]Signal     `json:"connectivity"`
	Dispatching   bool                  `json:"dispatching"`
	LastDispatch  *DispatchSummary      `json:"last_dispatch,omitempty"`
	SkippedBlocks []string              `json:"skipped_blocks,omitempty"`
}

// view copies the store so the caller can read it outside the loop
func (st *store) view() View {
	v := View{
		PendingFlat:   slices.Clone(st.pending.Flat),
		PendingBlocks: make([]reconcile.BlockView, len(st.pending.Blocks)),
		Staged:        make([]model.StagedItem, 0, len(st.staged)),
		Discarded:     make([]DiscardedItem, 0, len(st.discarded)),
		Sent:          make([]model.SentRecord, 0, len(st.sentOrder)),
		Connectivity:  maps.Clone(st.connectivity),
		Dispatching:   st.dispatching,
		SkippedBlocks: slices.Clone(st.pending.Skipped),
	}

	for i, b := range st.pending.Blocks {
		b.Claims = slices.Clone(b.Claims)
		v.PendingBlocks[i] = b
	}
	for _, item := range st.staged {
		v.Staged = append(v.Staged, *item)
	}
	slices.SortFunc(v.Staged, func(a, b model.StagedItem) int {
		if c := a.StagedAt.Compare(b.StagedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Claim.ID, b.Claim.ID)
	})
	for _, item := range st.discarded {
		v.Discarded = append(v.Discarded, item)
	}
	slices.SortFunc(v.Discarded, func(a, b DiscardedItem) int {
		if c := a.DiscardedAt.Compare(b.DiscardedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Claim.ID, b.Claim.ID)
	})
	for _, id := range st.sentOrder {
		v.Sent = append(v.Sent, st.sent[id])
	}
	if st.lastDispatch != nil {
		summary := *st.lastDispatch
		summary.Errors = slices.Clone(summary.Errors)
		v.LastDispatch = &summary
	}
	return v
}
