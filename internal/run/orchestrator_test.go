package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	busmem "github.com/focusops/focus-collector/internal/bus/memory"
	"github.com/focusops/focus-collector/internal/events"
	"github.com/focusops/focus-collector/internal/fetch"
	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/hash/sha256"
	"github.com/focusops/focus-collector/internal/normalize"
	storemem "github.com/focusops/focus-collector/internal/store/memory"
	"github.com/focusops/focus-collector/internal/summary"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeFetcher struct {
	items map[string][]focus.RawItem
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) ([]focus.RawItem, error) {
	if err := f.errs[req.Source.ID]; err != nil {
		return nil, err
	}
	return f.items[req.Source.ID], nil
}

type fakeSummarizer struct {
	err      error
	failAt   int
	attempts int
	calls    int
}

func (s *fakeSummarizer) Summarize(
	_ context.Context,
	item focus.CleanItem,
	_ []focus.Keyword,
	emit func(events.Event),
) (summary.Result, error) {
	s.calls++
	if s.err != nil && (s.failAt == 0 || s.calls == s.failAt) {
		for attempt := 1; attempt <= 3; attempt++ {
			emit(events.SummaryError(attempt, item.Platform, s.err.Error()))
		}
		return summary.Result{}, s.err
	}
	attempt := s.attempts
	if attempt == 0 {
		attempt = 1
	}
	emit(events.SummarySuccess(attempt, item.Platform))
	return summary.Result{
		Summary:  "A sufficiently descriptive verdict about this collected item.",
		Relevant: true,
	}, nil
}

type harness struct {
	store      *storemem.Store
	bus        *busmem.Bus
	fetcher    *fakeFetcher
	summarizer *fakeSummarizer
	orch       *Orchestrator
	frames     <-chan []byte
	cancelSub  func()
}

func newHarness(t *testing.T, query focus.Query) *harness {
	t.Helper()

	st := storemem.New()
	st.PutQuery(query)
	require.NoError(t, st.CreateRun(context.Background(), focus.QueryRun{
		ID:      "run-1",
		QueryID: query.ID,
		Status:  focus.RunPending,
	}))

	b := busmem.New()
	frames, cancel, err := b.Subscribe(context.Background(), focus.RunChannel("run-1"))
	require.NoError(t, err)
	t.Cleanup(cancel)

	fetcher := &fakeFetcher{items: map[string][]focus.RawItem{}, errs: map[string]error{}}
	summarizer := &fakeSummarizer{}

	orch := New(
		st,
		fetcher,
		normalize.New(sha256.New()),
		summarizer,
		b,
		&fakeClock{t: time.Unix(1700000000, 0).UTC()},
		&seqIDs{},
		zap.NewNop(),
	)

	return &harness{
		store:      st,
		bus:        b,
		fetcher:    fetcher,
		summarizer: summarizer,
		orch:       orch,
		frames:     frames,
		cancelSub:  cancel,
	}
}

func (h *harness) drainEvents(t *testing.T) []events.Event {
	t.Helper()
	var out []events.Event
	for {
		select {
		case frame := <-h.frames:
			var e events.Event
			require.NoError(t, json.Unmarshal(frame, &e))
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(evts []events.Event) []events.Type {
	types := make([]events.Type, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type)
	}
	return types
}

func testQuery() focus.Query {
	return focus.Query{
		ID:      "q-1",
		Name:    "breach watch",
		Enabled: true,
		Keywords: []focus.Keyword{
			{ID: "k-1", Text: "acme"},
			{ID: "k-2", Text: "breach"},
		},
		Sources: []focus.Source{
			{
				ID: "s-web", Name: "site", Type: focus.SourceWeb,
				Web: &focus.WebConfig{URL: "https://example.com", Engine: focus.EngineFetch},
			},
			{
				ID: "s-social", Name: "tg", Type: focus.SourceSocialMedia,
				Social: &focus.SocialMediaConfig{Platform: "telegram", Config: map[string]string{"channel": "x"}},
			},
		},
	}
}

func TestExecute_HappyPath(t *testing.T) {
	q := testQuery()
	h := newHarness(t, q)
	h.fetcher.items["s-web"] = []focus.RawItem{
		{Title: "A", Text: "first unique body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
		{Title: "A dup", Text: "first   unique \n body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
	}
	h.fetcher.items["s-social"] = []focus.RawItem{
		{Title: "B", Text: "second unique body", Platform: "telegram", SourceID: "s-social", SourceType: focus.SourceSocialMedia},
	}

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.NoError(t, err)

	runRec, err := h.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, focus.RunSucceeded, runRec.Status)
	assert.Equal(t, 100, runRec.Progress)
	require.NotNil(t, runRec.StartedAt)
	require.NotNil(t, runRec.FinishedAt)
	assert.Equal(t, 2, runRec.Meta["summaryCount"])

	contents := h.store.Contents()
	require.Len(t, contents, 2, "whitespace-variant duplicate is dropped")
	for _, c := range contents {
		assert.ElementsMatch(t, []string{"k-1", "k-2"}, h.store.KeywordLinks(c.ID),
			"every keyword links to every content row")
		assert.NotEmpty(t, c.Summary)
		assert.Equal(t, []string{"acme", "breach"}, c.Meta["keywords"])
		switch c.Meta["sourceId"] {
		case "s-web":
			assert.Equal(t, string(focus.SourceWeb), c.Meta["sourceType"])
		case "s-social":
			assert.Equal(t, string(focus.SourceSocialMedia), c.Meta["sourceType"])
		default:
			t.Fatalf("unexpected sourceId in meta: %v", c.Meta["sourceId"])
		}
	}

	evts := h.drainEvents(t)
	types := eventTypes(evts)
	assert.Equal(t, events.TypeStart, types[0])
	assert.Contains(t, types, events.TypeFetch)
	assert.Contains(t, types, events.TypeFetchDriver)
	assert.Contains(t, types, events.TypeFetchSuccess)
	assert.Contains(t, types, events.TypeClean)
	assert.Contains(t, types, events.TypeCleanDone)
	assert.Contains(t, types, events.TypeSummarySuccess)
	assert.Equal(t, events.TypeDone, types[len(types)-1])

	last := evts[len(evts)-1]
	require.NotNil(t, last.SummaryCount)
	assert.Equal(t, 2, *last.SummaryCount)
}

func TestExecute_QueryNotFoundFailsRun(t *testing.T) {
	h := newHarness(t, testQuery())

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "missing"})
	require.Error(t, err)

	runRec, err := h.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, focus.RunFailed, runRec.Status)
	assert.Contains(t, runRec.Meta["error"], "missing")
}

func TestExecute_SourceFailureIsIsolated(t *testing.T) {
	h := newHarness(t, testQuery())
	h.fetcher.errs["s-web"] = errors.New("connection refused")
	h.fetcher.items["s-social"] = []focus.RawItem{
		{Title: "B", Text: "still collected despite sibling failure", Platform: "telegram", SourceID: "s-social", SourceType: focus.SourceSocialMedia},
	}

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.NoError(t, err)

	runRec, err := h.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, focus.RunSucceeded, runRec.Status)
	assert.Len(t, h.store.Contents(), 1)

	var errorEvents int
	for _, e := range h.drainEvents(t) {
		if e.Type == events.TypeError {
			errorEvents++
			assert.Equal(t, "s-web", e.SourceID)
		}
	}
	assert.Equal(t, 1, errorEvents)
}

func TestExecute_MissingSourceConfigSkipped(t *testing.T) {
	q := testQuery()
	q.Sources = append(q.Sources, focus.Source{ID: "s-bad", Name: "bad", Type: focus.SourceWeb})
	h := newHarness(t, q)
	h.fetcher.items["s-web"] = []focus.RawItem{
		{Title: "A", Text: "some body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
	}

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.NoError(t, err)

	runRec, _ := h.store.GetRun(context.Background(), "run-1")
	assert.Equal(t, focus.RunSucceeded, runRec.Status)
}

func TestExecute_EmptyCleanSetSucceeds(t *testing.T) {
	h := newHarness(t, testQuery())

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.NoError(t, err)

	runRec, _ := h.store.GetRun(context.Background(), "run-1")
	assert.Equal(t, focus.RunSucceeded, runRec.Status)
	assert.Equal(t, 100, runRec.Progress)
	assert.Equal(t, 0, runRec.Meta["summaryCount"])
	assert.Equal(t, 0, h.summarizer.calls)

	evts := h.drainEvents(t)
	last := evts[len(evts)-1]
	assert.Equal(t, events.TypeDone, last.Type)
	require.NotNil(t, last.SummaryCount)
	assert.Equal(t, 0, *last.SummaryCount)
}

func TestExecute_SummarizationFailureAbortsButKeepsPersisted(t *testing.T) {
	h := newHarness(t, testQuery())
	h.fetcher.items["s-web"] = []focus.RawItem{
		{Title: "A", Text: "first unique body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
		{Title: "B", Text: "second unique body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
	}
	h.summarizer.err = errors.New("model unavailable")
	h.summarizer.failAt = 2

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.Error(t, err)

	runRec, _ := h.store.GetRun(context.Background(), "run-1")
	assert.Equal(t, focus.RunFailed, runRec.Status)
	assert.Equal(t, 50, runRec.Progress, "progress stays at the last persisted checkpoint")
	assert.Len(t, h.store.Contents(), 1, "items persisted before the failure stay")

	var summaryErrors int
	for _, e := range h.drainEvents(t) {
		if e.Type == events.TypeSummaryError {
			summaryErrors++
		}
	}
	assert.Equal(t, 3, summaryErrors, "one summary-error per attempt")
}

func TestExecute_ProgressMonotonic(t *testing.T) {
	h := newHarness(t, testQuery())
	h.fetcher.items["s-web"] = []focus.RawItem{
		{Title: "1", Text: "body one", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
		{Title: "2", Text: "body two", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
		{Title: "3", Text: "body three", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb},
	}

	require.NoError(t, h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"}))

	prev := -1
	for _, e := range h.drainEvents(t) {
		if e.Type != events.TypeProgress {
			continue
		}
		require.NotNil(t, e.Progress)
		assert.Greater(t, *e.Progress, prev)
		prev = *e.Progress
	}
	assert.Equal(t, 100, prev)
}

func TestExecute_RunsAreIsolated(t *testing.T) {
	q := testQuery()
	h := newHarness(t, q)
	require.NoError(t, h.store.CreateRun(context.Background(), focus.QueryRun{
		ID: "run-2", QueryID: q.ID, Status: focus.RunPending,
	}))

	otherFrames, cancel, err := h.bus.Subscribe(context.Background(), focus.RunChannel("run-2"))
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.orch.Execute(context.Background(), focus.RunJob{RunID: "run-1", QueryID: "q-1"}))

	select {
	case frame := <-otherFrames:
		t.Fatalf("run-2 channel received foreign frame: %s", frame)
	default:
	}
}

// cancelSensitiveStore refuses writes on a canceled context, like a real
// database driver would.
type cancelSensitiveStore struct {
	*storemem.Store
}

func (s *cancelSensitiveStore) CompleteRun(
	ctx context.Context,
	runID string,
	status focus.RunStatus,
	finishedAt time.Time,
	progress int,
	meta map[string]any,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CompleteRun(ctx, runID, status, finishedAt, progress, meta)
}

type cancelingSummarizer struct {
	cancel context.CancelFunc
}

func (s *cancelingSummarizer) Summarize(
	ctx context.Context,
	_ focus.CleanItem,
	_ []focus.Keyword,
	_ func(events.Event),
) (summary.Result, error) {
	s.cancel()
	return summary.Result{}, ctx.Err()
}

func TestExecute_TerminalWriteSurvivesContextCancel(t *testing.T) {
	st := storemem.New()
	st.PutQuery(testQuery())
	require.NoError(t, st.CreateRun(context.Background(), focus.QueryRun{
		ID: "run-1", QueryID: "q-1", Status: focus.RunPending,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{items: map[string][]focus.RawItem{
		"s-web": {{Title: "A", Text: "some body", Platform: "site", SourceID: "s-web", SourceType: focus.SourceWeb}},
	}, errs: map[string]error{}}

	orch := New(
		&cancelSensitiveStore{Store: st},
		fetcher,
		normalize.New(sha256.New()),
		&cancelingSummarizer{cancel: cancel},
		busmem.New(),
		&fakeClock{t: time.Unix(1700000000, 0).UTC()},
		&seqIDs{},
		zap.NewNop(),
	)

	err := orch.Execute(ctx, focus.RunJob{RunID: "run-1", QueryID: "q-1"})
	require.Error(t, err)

	runRec, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, focus.RunFailed, runRec.Status,
		"run closes FAILED even though its context was canceled")
}

func TestExecute_MarkRunningMissingRun(t *testing.T) {
	h := newHarness(t, testQuery())

	err := h.orch.Execute(context.Background(), focus.RunJob{RunID: "no-such-run", QueryID: "q-1"})
	require.Error(t, err)
}
