package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/claimdesk/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend serves one pending block and records approvals
type fakeBackend struct {
	mu       sync.Mutex
	approved []model.FreshSubmission
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pending-claims", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"block_id": "block_1", "timestamp": "2026-03-01T20:00:00", "info": "Debate",
			"claims": [{"name": "Anna", "claim": "X"}]}]`)
	})
	mux.HandleFunc("GET /api/fact-checks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"id": 9, "sprecher": "Anna", "behauptung": "X", "consistency": "hoch",
			"episode_key": "ep1"}]`)
	})
	mux.HandleFunc("POST /api/approve-claims", func(w http.ResponseWriter, r *http.Request) {
		var sub model.FreshSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.approved = append(b.approved, sub)
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprint(w, `{"status": "processing"}`)
	})
	return mux
}

func (b *fakeBackend) approvals() []model.FreshSubmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.FreshSubmission(nil), b.approved...)
}

func testConfig(baseURL string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Session.Target = "ep1"
	cfg.Backend.BaseURL = baseURL
	cfg.Poll.DiscoveryInterval = 10 * time.Millisecond
	cfg.Poll.ResultsInterval = 10 * time.Millisecond
	cfg.Poll.Timeout = time.Second
	cfg.Cache.CleanupInterval = 5 * time.Millisecond
	cfg.Dispatch.RatePerSecond = 0
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Session.Target = ""
	_, err := New(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRun_EndToEnd(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a, err := New(testConfig(srv.URL), zerolog.Nop(), WithListener(ln))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	sess := a.Session()
	require.Eventually(t, func() bool {
		v, err := sess.View(ctx)
		return err == nil && len(v.PendingFlat) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := a.Results().Results("ep1")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sess.Stage(ctx, model.SnapshotID("block_1", 0)))
	n, err := sess.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		v, err := sess.View(ctx)
		return err == nil && len(v.Sent) == 1 && v.Sent[0].ResultID != nil
	}, 2*time.Second, 5*time.Millisecond)

	approvals := backend.approvals()
	require.Len(t, approvals, 1)
	assert.Equal(t, "ep1", approvals[0].Target)
	assert.Equal(t, []model.ClaimPayload{{Name: "Anna", Claim: "X"}}, approvals[0].Claims)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
