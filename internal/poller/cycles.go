package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/claimdesk/internal/feed"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
)

// Signaler records connectivity signals
type Signaler interface {
	SignalConnectivity(ctx context.Context, feed string, err error) error
}

// SnapshotSink receives discovery snapshots
type SnapshotSink interface {
	Signaler
	ApplySnapshot(ctx context.Context, blocks []model.Block) error
}

// ResultsSink receives published results
type ResultsSink interface {
	Signaler
	LinkResults(ctx context.Context, results []model.PublishedResult) (int, error)
}

// ResultsStore keeps the latest published results per target
type ResultsStore interface {
	SetResults(target string, results []model.PublishedResult)
}

// DiscoveryCycle fetches a snapshot and hands it to sink. A failed fetch
// becomes a connectivity signal and the previous snapshot stays in effect.
// Delivery uses parent so that the cycle deadline only bounds the fetch.
func DiscoveryCycle(parent context.Context, src feed.DiscoverySource, sink SnapshotSink) Cycle {
	return func(ctx context.Context) error {
		blocks, err := src.Snapshot(ctx)
		if err != nil {
			err = asConnectivity(model.FeedDiscovery, err)
			if serr := sink.SignalConnectivity(parent, model.FeedDiscovery, err); serr != nil {
				return serr
			}
			return err
		}
		return sink.ApplySnapshot(parent, blocks)
	}
}

// ResultsCycle fetches the published results, stores them and links their
// ids onto sent records. store may be nil.
func ResultsCycle(parent context.Context, src feed.ResultsSource, target string, store ResultsStore, sink ResultsSink) Cycle {
	return func(ctx context.Context) error {
		results, err := src.Results(ctx)
		if err != nil {
			err = asConnectivity(model.FeedResults, err)
			if serr := sink.SignalConnectivity(parent, model.FeedResults, err); serr != nil {
				return serr
			}
			return err
		}
		if store != nil {
			store.SetResults(target, results)
		}
		if _, err := sink.LinkResults(parent, results); err != nil {
			return fmt.Errorf("link results: %w", err)
		}
		return nil
	}
}

// asConnectivity makes sure every poll failure reads as a connectivity error
func asConnectivity(feedName string, err error) error {
	if errors.Is(err, model.ErrConnectivity) || errors.Is(err, model.ErrConnectivityTimeout) {
		return err
	}
	return &model.ConnectivityError{Feed: feedName, Timeout: util.IsTimeout(err), Err: err}
}
