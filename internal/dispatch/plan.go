package dispatch

import "github.com/ppiankov/claimdesk/internal/model"

// Plan splits a dispatch into fresh sub-batches and individual resends
type Plan struct {
	Fresh  [][]model.Claim
	Resend []model.Claim
}

// NewPlan classifies claims and chunks the fresh ones into sub-batches of
// at most batchSize. A batchSize of zero or less puts every fresh claim in
// one sub-batch. Input order is kept within each group.
func NewPlan(claims []model.Claim, batchSize int) Plan {
	var (
		plan  Plan
		fresh []model.Claim
	)

	for _, c := range claims {
		switch model.KindOf(c) {
		case model.DispatchResend:
			plan.Resend = append(plan.Resend, c)
		default:
			fresh = append(fresh, c)
		}
	}

	if len(fresh) == 0 {
		return plan
	}
	if batchSize <= 0 || batchSize >= len(fresh) {
		plan.Fresh = [][]model.Claim{fresh}
		return plan
	}
	for start := 0; start < len(fresh); start += batchSize {
		end := min(start+batchSize, len(fresh))
		plan.Fresh = append(plan.Fresh, fresh[start:end])
	}
	return plan
}

// Size returns the number of claims in the plan
func (p Plan) Size() int {
	n := len(p.Resend)
	for _, b := range p.Fresh {
		n += len(b)
	}
	return n
}
