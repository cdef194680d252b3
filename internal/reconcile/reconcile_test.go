package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimdesk/internal/model"
)

var (
	t1 = time.Date(2025, 9, 19, 21, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t1.Add(2 * time.Minute)
)

func block(id string, ts time.Time, claims ...[2]string) model.Block {
	raw := make([]model.ClaimPayload, len(claims))
	for i, c := range claims {
		raw[i] = model.ClaimPayload{Name: c[0], Claim: c[1]}
	}
	return model.BlockFromPayload(id, ts, "", raw)
}

func texts(claims []model.Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Text
	}
	return out
}

func blockIDs(blocks []BlockView) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func TestReconcile_FlatOldestFirstBlocksNewestFirst(t *testing.T) {
	snapshot := []model.Block{
		block("B2", t2, [2]string{"Carl", "Z"}),
		block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"}),
	}

	proj := Reconcile(Input{Snapshot: snapshot})

	assert.Equal(t, []string{"X", "Y", "Z"}, texts(proj.Flat))
	assert.Equal(t, []string{"B2", "B1"}, blockIDs(proj.Blocks))
}

func TestReconcile_StagedClaimLeavesBothProjections(t *testing.T) {
	snapshot := []model.Block{block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"})}

	proj := Reconcile(Input{Snapshot: snapshot, Excluded: NewSet("B1#0")})

	assert.Equal(t, []string{"Y"}, texts(proj.Flat))
	require.Len(t, proj.Blocks, 1)
	assert.Equal(t, []string{"Y"}, texts(proj.Blocks[0].Claims))
}

func TestReconcile_OverlaySurvivesRepolls(t *testing.T) {
	overlay := map[model.ClaimID]model.Override{"B1#1": model.Override{}.Set(model.FieldClaim, "Y2")}

	for range 5 {
		snapshot := []model.Block{block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"})}
		proj := Reconcile(Input{Snapshot: snapshot, Excluded: NewSet("B1#0"), Overlay: overlay})

		assert.Equal(t, []string{"Y2"}, texts(proj.Flat))
		assert.Equal(t, []string{"Y2"}, texts(proj.Blocks[0].Claims))
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	in := Input{
		Snapshot: []model.Block{
			block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"}),
			block("B0", t1, [2]string{"Dora", "W"}),
			block("B2", t2, [2]string{"Carl", "Z"}),
		},
		Excluded: NewSet("B2#0"),
		Overlay:  map[model.ClaimID]model.Override{"B1#0": model.Override{}.Set(model.FieldName, "Anna K.")},
		Local: []model.Claim{
			{ID: "resend:1", Name: "Eve", Text: "V", BlockID: "B9", Timestamp: t3, Origin: model.OriginManufactured, ResendOf: "B9#0"},
		},
	}

	first := Reconcile(in)
	second := Reconcile(in)

	assert.Equal(t, first, second)
	// Equal timestamps order by block id, then position.
	assert.Equal(t, []string{"W", "X", "Y", "V"}, texts(first.Flat))
}

func TestReconcile_EmptyBlockDisappears(t *testing.T) {
	snapshot := []model.Block{
		block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"}),
		block("B2", t2, [2]string{"Carl", "Z"}),
	}

	proj := Reconcile(Input{Snapshot: snapshot, Excluded: NewSet("B1#0", "B1#1")})

	assert.Equal(t, []string{"B2"}, blockIDs(proj.Blocks))
	assert.Equal(t, []string{"Z"}, texts(proj.Flat))
}

func TestReconcile_ExcludedIdentityNeverResurrects(t *testing.T) {
	// The feed re-surfaces B1 with X unchanged and a later block repeats X's text.
	snapshot := []model.Block{
		block("B1", t1, [2]string{"Anna", "X"}, [2]string{"Bob", "Y"}),
		block("B2", t2, [2]string{"Anna", "X"}),
	}

	proj := Reconcile(Input{Snapshot: snapshot, Excluded: NewSet("B1#0")})

	_, found := proj.Find("B1#0")
	assert.False(t, found, "excluded identity must not return to pending")

	// Same text under a different identity is not suppressed by content.
	got, found := proj.Find("B2#0")
	require.True(t, found)
	assert.Equal(t, "X", got.Text)
}

func TestReconcile_ManufacturedClaimsStayOutOfBlocks(t *testing.T) {
	resend := model.Claim{
		ID: "resend:abc", Name: "Anna", Text: "X corrected", BlockID: "B1",
		Timestamp: t3, Origin: model.OriginManufactured, ResendOf: "B1#0",
	}

	// The manufactured claim persists whatever the snapshot holds.
	for _, snapshot := range [][]model.Block{
		{block("B1", t1, [2]string{"Anna", "X"})},
		nil,
	} {
		proj := Reconcile(Input{Snapshot: snapshot, Excluded: NewSet("B1#0"), Local: []model.Claim{resend}})

		require.Len(t, proj.Flat, 1)
		assert.Equal(t, resend.ID, proj.Flat[0].ID)
		assert.Empty(t, proj.Blocks)
	}
}

func TestReconcile_LocalSnapshotClaimRegroupsWhenBlockGone(t *testing.T) {
	retained := model.Claim{
		ID: "B1#1", Name: "Bob", Text: "Y", BlockID: "B1", Position: 1,
		Timestamp: t1, Info: "Sendung", Origin: model.OriginSnapshot,
	}

	proj := Reconcile(Input{Local: []model.Claim{retained}})

	require.Len(t, proj.Blocks, 1)
	assert.Equal(t, "B1", proj.Blocks[0].ID)
	assert.Equal(t, "Sendung", proj.Blocks[0].Info)
	assert.Equal(t, t1, proj.Blocks[0].Timestamp)
}

func TestReconcile_SnapshotWinsOverLocalDuplicate(t *testing.T) {
	snapshot := []model.Block{block("B1", t1, [2]string{"Anna", "X"})}
	stale := snapshot[0].Claims[0]
	stale.Text = "stale"

	proj := Reconcile(Input{Snapshot: snapshot, Local: []model.Claim{stale}})

	assert.Equal(t, []string{"X"}, texts(proj.Flat))
}

func TestReconcile_DuplicateBlockIDsSkipped(t *testing.T) {
	snapshot := []model.Block{
		block("B1", t1, [2]string{"Anna", "X"}),
		block("B1", t2, [2]string{"Anna", "other"}),
	}

	proj := Reconcile(Input{Snapshot: snapshot})

	assert.Equal(t, []string{"X"}, texts(proj.Flat))
	assert.Equal(t, []string{"B1"}, proj.Skipped)
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	snapshot := []model.Block{block("B1", t1, [2]string{"Anna", "X"})}
	overlay := map[model.ClaimID]model.Override{"B1#0": model.Override{}.Set(model.FieldClaim, "X2")}

	_ = Reconcile(Input{Snapshot: snapshot, Overlay: overlay})

	assert.Equal(t, "X", snapshot[0].Claims[0].Text)
}

func TestReconcile_EmptyInput(t *testing.T) {
	proj := Reconcile(Input{})
	assert.NotNil(t, proj.Flat)
	assert.Empty(t, proj.Flat)
	assert.Empty(t, proj.Blocks)
}

func TestUnion(t *testing.T) {
	s := Union(NewSet("a"), NewSet("b", "a"), nil)
	assert.Len(t, s, 2)
	assert.True(t, s.Has("b"))
}
