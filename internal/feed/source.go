package feed

import (
	"context"
	"errors"

	"github.com/ppiankov/claimdesk/internal/model"
)

// DiscoverySource offers the latest snapshot of discovered blocks
type DiscoverySource interface {
	Snapshot(ctx context.Context) ([]model.Block, error)
}

// ResultsSource offers the published results of the session's target
type ResultsSource interface {
	Results(ctx context.Context) ([]model.PublishedResult, error)
}

// HTTPDiscovery adapts Client to DiscoverySource
type HTTPDiscovery struct {
	Client *Client
}

var _ DiscoverySource = HTTPDiscovery{}

// Snapshot fetches the pending-claims feed
func (d HTTPDiscovery) Snapshot(ctx context.Context) ([]model.Block, error) {
	return d.Client.FetchPending(ctx)
}

// HTTPResults adapts Client to ResultsSource for one target
type HTTPResults struct {
	Client *Client
	Target string
}

var _ ResultsSource = HTTPResults{}

// Results fetches the published results for the target
func (r HTTPResults) Results(ctx context.Context) ([]model.PublishedResult, error) {
	return r.Client.FetchResults(ctx, r.Target)
}

// Multi concatenates the snapshots of several sources. Any failing source
// fails the whole snapshot, so a partial view is never mistaken for a
// complete one.
type Multi []DiscoverySource

var _ DiscoverySource = Multi(nil)

// Snapshot queries every source in order
func (m Multi) Snapshot(ctx context.Context) ([]model.Block, error) {
	var (
		blocks []model.Block
		errs   []error
	)
	for _, src := range m {
		b, err := src.Snapshot(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		blocks = append(blocks, b...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return blocks, nil
}
