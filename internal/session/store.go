package session

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ppiankov/claimdesk/internal/dispatch"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/reconcile"
)

// DiscardedItem is a rejected claim, kept with its edited values
type DiscardedItem struct {
	Claim       model.Claim `json:"claim"`
	DiscardedAt time.Time   `json:"discarded_at"`
}

// store holds the editorial partitions. It is owned by the session loop
// and never touched from any other goroutine.
type store struct {
	snapshot  []model.Block
	overlay   map[model.ClaimID]model.Override
	local     map[model.ClaimID]model.Claim
	staged    map[model.ClaimID]*model.StagedItem
	discarded map[model.ClaimID]DiscardedItem
	sent      map[model.ClaimID]model.SentRecord
	sentOrder []model.ClaimID

	pending reconcile.Projection

	connectivity map[string]Signal
	dispatching  bool
	lastDispatch *DispatchSummary

	ids IDGenerator
	now func() time.Time
}

func newStore(ids IDGenerator, now func() time.Time) *store {
	st := &store{
		overlay:      make(map[model.ClaimID]model.Override),
		local:        make(map[model.ClaimID]model.Claim),
		staged:       make(map[model.ClaimID]*model.StagedItem),
		discarded:    make(map[model.ClaimID]DiscardedItem),
		sent:         make(map[model.ClaimID]model.SentRecord),
		connectivity: make(map[string]Signal),
		ids:          ids,
		now:          now,
	}
	st.recompute()
	return st
}

// excluded is Staged ∪ Discarded ∪ Sent-origin
func (st *store) excluded() reconcile.Set {
	return reconcile.Union(keySet(st.staged), keySet(st.discarded), keySet(st.sent))
}

func keySet[V any](m map[model.ClaimID]V) reconcile.Set {
	set := make(reconcile.Set, len(m))
	for id := range m {
		set.Add(id)
	}
	return set
}

func (st *store) recompute() {
	local := make([]model.Claim, 0, len(st.local))
	for _, c := range st.local {
		local = append(local, c)
	}
	st.pending = reconcile.Reconcile(reconcile.Input{
		Snapshot: st.snapshot,
		Excluded: st.excluded(),
		Overlay:  st.overlay,
		Local:    local,
	})
}

// partitionOf returns the partition holding id, or "" if none does
func (st *store) partitionOf(id model.ClaimID) model.Partition {
	switch {
	case st.staged[id] != nil:
		return model.PartitionStaged
	case hasKey(st.discarded, id):
		return model.PartitionDiscarded
	case hasKey(st.sent, id):
		return model.PartitionSent
	}
	if _, ok := st.pending.Find(id); ok {
		return model.PartitionPending
	}
	return ""
}

func (st *store) requirePending(id model.ClaimID, action string) (model.Claim, error) {
	c, ok := st.pending.Find(id)
	if !ok {
		return model.Claim{}, &model.TransitionError{ID: id, Action: action, State: st.partitionOf(id)}
	}
	return c, nil
}

// snapshotBase returns the unedited claim the current snapshot holds for id
func (st *store) snapshotBase(id model.ClaimID) (model.Claim, bool) {
	for _, b := range st.snapshot {
		for _, c := range b.Claims {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Claim{}, false
}

// leavePending drops every trace of id from the pending side
func (st *store) leavePending(id model.ClaimID) {
	delete(st.overlay, id)
	delete(st.local, id)
}

// returnToPending puts a claim carrying edited values back into Pending.
// When the snapshot still owns the claim the edits go to the overlay,
// otherwise the claim is held locally as is.
func (st *store) returnToPending(c model.Claim) {
	if base, ok := st.snapshotBase(c.ID); ok {
		if o := model.Diff(base, c); !o.IsEmpty() {
			st.overlay[c.ID] = o
		}
		return
	}
	st.local[c.ID] = c
}

func (st *store) stage(id model.ClaimID) error {
	c, err := st.requirePending(id, "stage")
	if err != nil {
		return err
	}
	st.leavePending(id)
	st.fillResultID(&c)
	st.staged[id] = &model.StagedItem{Claim: c, StagedAt: st.now(), Kind: model.KindOf(c)}
	st.recompute()
	return nil
}

func (st *store) unstage(id model.ClaimID) error {
	item := st.staged[id]
	if item == nil {
		return &model.TransitionError{ID: id, Action: "unstage", State: st.partitionOf(id)}
	}
	if item.InFlight {
		return fmt.Errorf("unstage %s: %w", id, model.ErrDispatchInFlight)
	}
	delete(st.staged, id)
	st.returnToPending(item.Claim)
	st.recompute()
	return nil
}

func (st *store) discard(id model.ClaimID) error {
	c, err := st.requirePending(id, "discard")
	if err != nil {
		return err
	}
	st.leavePending(id)
	st.discarded[id] = DiscardedItem{Claim: c, DiscardedAt: st.now()}
	st.recompute()
	return nil
}

func (st *store) discardCollection(blockID string) (int, error) {
	var ids []model.ClaimID
	for _, c := range st.pending.Flat {
		if c.BlockID == blockID && !c.Manufactured() {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("block %s has no pending claims: %w", blockID, model.ErrNotFound)
	}

	now := st.now()
	for _, id := range ids {
		c, _ := st.pending.Find(id)
		st.leavePending(id)
		st.discarded[id] = DiscardedItem{Claim: c, DiscardedAt: now}
	}
	st.recompute()
	return len(ids), nil
}

func (st *store) undiscard(id model.ClaimID) error {
	item, ok := st.discarded[id]
	if !ok {
		return &model.TransitionError{ID: id, Action: "undiscard", State: st.partitionOf(id)}
	}
	delete(st.discarded, id)
	st.returnToPending(item.Claim)
	st.recompute()
	return nil
}

func (st *store) updatePending(id model.ClaimID, field model.Field, value string) (model.Claim, error) {
	if _, err := st.requirePending(id, "edit"); err != nil {
		return model.Claim{}, err
	}
	if field == model.FieldClaim && strings.TrimSpace(value) == "" {
		return model.Claim{}, model.NewValidationError("value", value, "claim text must not be empty")
	}

	st.overlay[id] = st.overlay[id].Set(field, value)
	st.recompute()
	c, _ := st.pending.Find(id)
	return c, nil
}

func (st *store) resend(sentID model.ClaimID) (model.Claim, error) {
	rec, ok := st.sent[sentID]
	if !ok {
		return model.Claim{}, &model.TransitionError{ID: sentID, Action: "resend", State: st.partitionOf(sentID)}
	}
	if open, ok := st.openResend(sentID); ok {
		return model.Claim{}, fmt.Errorf("resend of %s is already open as %s: %w", sentID, open, model.ErrAlreadyExists)
	}

	resultID := rec.ResultID
	if resultID == nil {
		resultID = rec.Claim.ResultID
	}
	c := model.Claim{
		ID:           model.ManufacturedID(st.ids.Generate()),
		Name:         rec.Claim.Name,
		Text:         rec.Claim.Text,
		Timestamp:    st.now(),
		Info:         rec.Claim.Info,
		Origin:       model.OriginManufactured,
		ResendOf:     sentID,
		ResultID:     copyID(resultID),
		OriginalText: rec.Claim.Text,
	}
	st.local[c.ID] = c
	st.recompute()
	return c, nil
}

// openResend finds a Pending, Staged or Discarded resend of sentID
func (st *store) openResend(sentID model.ClaimID) (model.ClaimID, bool) {
	for _, c := range st.pending.Flat {
		if c.ResendOf == sentID {
			return c.ID, true
		}
	}
	for id, item := range st.staged {
		if item.Claim.ResendOf == sentID {
			return id, true
		}
	}
	for id, item := range st.discarded {
		if item.Claim.ResendOf == sentID {
			return id, true
		}
	}
	return "", false
}

// applySnapshot installs a new discovery snapshot. Pending claims whose
// block left the feed are kept locally so they are never dropped silently.
func (st *store) applySnapshot(blocks []model.Block) {
	incoming := make(map[model.ClaimID]model.Claim)
	for _, b := range blocks {
		for _, c := range b.Claims {
			incoming[c.ID] = c
		}
	}

	for _, c := range st.pending.Flat {
		if c.Manufactured() || hasKey(incoming, c.ID) || hasKey(st.local, c.ID) {
			continue
		}
		if base, ok := st.snapshotBase(c.ID); ok {
			st.local[c.ID] = base
		}
	}

	// A held claim that shows up again in the feed goes back to the
	// snapshot; whatever it carried beyond the feed's values becomes overlay
	for id, held := range st.local {
		base, ok := incoming[id]
		if !ok {
			continue
		}
		delete(st.local, id)
		o := model.Diff(base, held)
		if prev, ok := st.overlay[id]; ok {
			if prev.Name != nil {
				o.Name = prev.Name
			}
			if prev.Text != nil {
				o.Text = prev.Text
			}
		}
		if o.IsEmpty() {
			delete(st.overlay, id)
		} else {
			st.overlay[id] = o
		}
	}

	st.snapshot = blocks
	st.recompute()
}

// beginDispatch marks the selected staged items in flight and returns
// their frozen claims in flat order
func (st *store) beginDispatch(ids []model.ClaimID) []model.Claim {
	claims := make([]model.Claim, 0, len(ids))
	for _, id := range ids {
		item := st.staged[id]
		item.InFlight = true
		st.fillResultID(&item.Claim)
		claims = append(claims, item.Claim)
	}
	slices.SortFunc(claims, func(a, b model.Claim) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	st.dispatching = true
	return claims
}

// dispatchable lists staged items a send-all picks up
func (st *store) dispatchable() []model.ClaimID {
	var ids []model.ClaimID
	for id, item := range st.staged {
		if !item.InFlight && !item.NeedsRetry {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (st *store) completeDispatch(report dispatch.Report) {
	for _, o := range report.Outcomes {
		item := st.staged[o.ClaimID]
		if item == nil {
			continue
		}
		if o.Err == nil {
			delete(st.staged, o.ClaimID)
			st.sent[o.ClaimID] = model.SentRecord{
				Claim:    item.Claim,
				SentAt:   o.SentAt,
				Kind:     o.Kind,
				ResultID: copyID(item.Claim.ResultID),
				BatchID:  o.BatchID,
			}
			st.sentOrder = append(st.sentOrder, o.ClaimID)
			continue
		}
		failedAt := report.FinishedAt
		item.InFlight = false
		item.LastError = o.Err.Error()
		item.FailedAt = &failedAt
		item.NeedsRetry = o.Kind == model.DispatchResend
	}

	// Items the report did not mention are released for the next dispatch
	for _, item := range st.staged {
		item.InFlight = false
	}

	st.dispatching = false
	st.lastDispatch = summarize(report)
	st.recompute()
}

// linkResults records published result ids on sent records that lack one,
// matching speaker and claim text. Partitions are not touched.
func (st *store) linkResults(results []model.PublishedResult) int {
	taken := make(map[int64]bool)
	for _, rec := range st.sent {
		if rec.ResultID != nil {
			taken[*rec.ResultID] = true
		}
	}

	linked := 0
	for _, id := range st.sentOrder {
		rec := st.sent[id]
		if rec.ResultID != nil {
			continue
		}
		for _, r := range results {
			if taken[r.ID] || !matches(rec.Claim, r) {
				continue
			}
			rid := r.ID
			rec.ResultID = &rid
			st.sent[id] = rec
			taken[rid] = true
			linked++
			break
		}
	}

	if linked > 0 {
		for id, c := range st.local {
			if st.fillResultID(&c) {
				st.local[id] = c
			}
		}
		st.recompute()
	}
	return linked
}

// fillResultID copies the result id of the sent record a resend claim
// refers to, once that id is known. It reports whether c changed.
func (st *store) fillResultID(c *model.Claim) bool {
	if !c.IsResend() || c.ResultID != nil {
		return false
	}
	rec, ok := st.sent[c.ResendOf]
	if !ok || rec.ResultID == nil {
		return false
	}
	c.ResultID = copyID(rec.ResultID)
	return true
}

func matches(c model.Claim, r model.PublishedResult) bool {
	return strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(r.Speaker)) &&
		strings.TrimSpace(c.Text) == strings.TrimSpace(r.Claim)
}

func (st *store) signal(feed string, err error) {
	now := st.now()
	sig := st.connectivity[feed]
	sig.Feed = feed
	if err == nil {
		sig.OK = true
		sig.Error = ""
		sig.Timeout = false
		sig.LastSuccess = &now
	} else {
		sig.OK = false
		sig.Error = err.Error()
		sig.Timeout = isTimeout(err)
		sig.LastFailure = &now
	}
	st.connectivity[feed] = sig
}

// verify checks that every identity sits in exactly one partition and
// that the overlay only covers pending claims
func (st *store) verify() error {
	where := make(map[model.ClaimID]model.Partition)
	add := func(id model.ClaimID, p model.Partition) error {
		if prev, ok := where[id]; ok {
			return fmt.Errorf("claim %s is both %s and %s", id, prev, p)
		}
		where[id] = p
		return nil
	}

	for id := range st.pending.IDs() {
		if err := add(id, model.PartitionPending); err != nil {
			return err
		}
	}
	for id := range st.staged {
		if err := add(id, model.PartitionStaged); err != nil {
			return err
		}
	}
	for id := range st.discarded {
		if err := add(id, model.PartitionDiscarded); err != nil {
			return err
		}
	}
	for id := range st.sent {
		if err := add(id, model.PartitionSent); err != nil {
			return err
		}
	}
	for id := range st.overlay {
		if where[id] != model.PartitionPending {
			return fmt.Errorf("overlay holds %s which is %q", id, where[id])
		}
	}
	return nil
}

func hasKey[V any](m map[model.ClaimID]V, id model.ClaimID) bool {
	_, ok := m[id]
	return ok
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
