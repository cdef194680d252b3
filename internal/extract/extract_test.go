package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/claimdesk/internal/llm"
	"github.com/ppiankov/claimdesk/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.ExtractRequest
	claims   []model.ClaimPayload
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(context.Context) bool { return true }

func (f *fakeProvider) ExtractClaims(_ context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ExtractResponse{Claims: f.claims, Model: "fake-model", TokensUsed: 42}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var fixedNow = time.Date(2026, 3, 1, 20, 15, 30, 0, time.UTC)

func newSource(p llm.Provider, opts ...Option) *LocalSource {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLocalSource(p, opts...)
}

func runSource(t *testing.T, s *LocalSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestParseHTML(t *testing.T) {
	page, err := ParseHTML(`
	<html>
	<head><title>Budget debate</title><style>p { color: red }</style></head>
	<body>
		<nav>Home | News</nav>
		<h1>Ignored for title</h1>
		<p>The deficit rose   to 3 percent.</p>
		<script>var x = 1;</script>
		<p>Unemployment fell<br>in March.</p>
	</body>
	</html>`)
	require.NoError(t, err)

	assert.Equal(t, "Budget debate", page.Title)
	assert.Contains(t, page.Text, "The deficit rose to 3 percent.")
	assert.Contains(t, page.Text, "Unemployment fell\nin March.")
	assert.NotContains(t, page.Text, "var x")
	assert.NotContains(t, page.Text, "color")
	assert.NotContains(t, page.Text, "Home")
}

func TestParseHTML_TitleFallsBackToH1(t *testing.T) {
	page, err := ParseHTML(`<body><h1>Election <em>night</em></h1><p>Text.</p></body>`)
	require.NoError(t, err)
	assert.Equal(t, "Election night", page.Title)
}

func TestDedupeClaims(t *testing.T) {
	got := dedupeClaims([]model.ClaimPayload{
		{Name: "Anna", Claim: "X"},
		{Name: " anna ", Claim: " x "},
		{Name: "Bob", Claim: "X"},
		{Name: "Cleo", Claim: "   "},
	})
	assert.Equal(t, []model.ClaimPayload{{Name: "Anna", Claim: "X"}, {Name: "Bob", Claim: "X"}}, got)
}

func TestSubmit_EmptyTextRejected(t *testing.T) {
	s := newSource(&fakeProvider{})

	_, err := s.Submit(model.TextBlockRequest{Text: "   ", Headline: "H"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = s.Submit(model.TextBlockRequest{HTML: "<p><script>x()</script></p>"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSubmit_ExtractsIntoSnapshot(t *testing.T) {
	p := &fakeProvider{claims: []model.ClaimPayload{
		{Name: "Anna", Claim: "The deficit rose to 3 percent."},
		{Name: "Bob", Claim: "Unemployment fell in March."},
	}}
	s := newSource(p)
	runSource(t, s)

	id, err := s.Submit(model.TextBlockRequest{Text: "article body", Headline: "Budget", PublicationDate: "März 2026"})
	require.NoError(t, err)
	assert.Equal(t, "article-20260301-201530", id)

	var blocks []model.Block
	require.Eventually(t, func() bool {
		blocks, _ = s.Snapshot(context.Background())
		return len(blocks) == 1
	}, time.Second, time.Millisecond)

	b := blocks[0]
	assert.Equal(t, id, b.ID)
	assert.Equal(t, "Budget", b.Info)
	assert.Equal(t, fixedNow, b.Timestamp)
	require.Len(t, b.Claims, 2)
	assert.Equal(t, model.SnapshotID(id, 1), b.Claims[1].ID)
	assert.Equal(t, "Bob", b.Claims[1].Name)

	require.Equal(t, 1, p.calls())
	assert.Equal(t, "März 2026", p.requests[0].PublicationDate)
}

func TestSubmit_HTMLInput(t *testing.T) {
	p := &fakeProvider{claims: []model.ClaimPayload{{Name: "Anna", Claim: "X"}}}
	s := newSource(p)
	runSource(t, s)

	_, err := s.Submit(model.TextBlockRequest{HTML: "<title>Debate</title><p>Anna said X.</p>"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		blocks, _ := s.Snapshot(context.Background())
		return len(blocks) == 1 && blocks[0].Info == "Debate"
	}, time.Second, time.Millisecond)
	assert.Equal(t, "Anna said X.", p.requests[0].Text)
}

func TestSubmit_UniqueSourceIDs(t *testing.T) {
	s := newSource(&fakeProvider{})

	a, err := s.Submit(model.TextBlockRequest{Text: "one"})
	require.NoError(t, err)
	b, err := s.Submit(model.TextBlockRequest{Text: "two"})
	require.NoError(t, err)
	c, err := s.Submit(model.TextBlockRequest{Text: "three", SourceID: "custom"})
	require.NoError(t, err)

	assert.Equal(t, "article-20260301-201530", a)
	assert.Equal(t, "article-20260301-201530_2", b)
	assert.Equal(t, "custom", c)
}

func TestSubmit_QueueFull(t *testing.T) {
	s := newSource(&fakeProvider{}, WithQueueDepth(1))

	_, err := s.Submit(model.TextBlockRequest{Text: "one"})
	require.NoError(t, err)
	_, err = s.Submit(model.TextBlockRequest{Text: "two"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestProcess_FailureAddsNoBlock(t *testing.T) {
	s := newSource(&fakeProvider{err: errors.New("rate limited")})
	id := s.reserve("")
	s.process(context.Background(), job{id: id, req: model.TextBlockRequest{Text: "body"}})

	blocks, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Equal(t, id, s.reserve(""), "failed source id is released")
}

func TestProcess_NoClaimsAddsNoBlock(t *testing.T) {
	s := newSource(&fakeProvider{claims: []model.ClaimPayload{{Name: "A", Claim: " "}}})
	s.process(context.Background(), job{id: "a", req: model.TextBlockRequest{Text: "body"}})

	blocks, _ := s.Snapshot(context.Background())
	assert.Empty(t, blocks)
}

func TestSnapshot_NewestFirst(t *testing.T) {
	p := &fakeProvider{claims: []model.ClaimPayload{{Name: "A", Claim: "X"}}}
	s := newSource(p)
	s.process(context.Background(), job{id: "first", req: model.TextBlockRequest{Text: "1"}})
	s.process(context.Background(), job{id: "second", req: model.TextBlockRequest{Text: "2"}})

	blocks, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "second", blocks[0].ID)
	assert.Equal(t, "first", blocks[1].ID)
}
