// Package run implements the collection run orchestrator: the single writer
// of a run's lifecycle from RUNNING to a terminal status.
package run

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/bus"
	"github.com/focusops/focus-collector/internal/events"
	"github.com/focusops/focus-collector/internal/fetch"
	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/metrics"
	"github.com/focusops/focus-collector/internal/normalize"
	"github.com/focusops/focus-collector/internal/store"
	"github.com/focusops/focus-collector/internal/summary"
)

// Clock supplies timestamps for run lifecycle fields.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints content row identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Fetcher dispatches one source fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) ([]focus.RawItem, error)
}

// Summarizer produces one relevance verdict per clean item.
type Summarizer interface {
	Summarize(
		ctx context.Context,
		item focus.CleanItem,
		keywords []focus.Keyword,
		emit func(events.Event),
	) (summary.Result, error)
}

// Normalizer deduplicates raw items.
type Normalizer interface {
	Clean(items []focus.RawItem, onClean func(focus.CleanItem)) []focus.CleanItem
}

// Orchestrator executes one collection run end to end.
type Orchestrator struct {
	store      store.Store
	fetcher    Fetcher
	normalizer Normalizer
	summarizer Summarizer
	bus        bus.Bus
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	st store.Store,
	fetcher Fetcher,
	normalizer Normalizer,
	summarizer Summarizer,
	eventBus bus.Bus,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		store:      st,
		fetcher:    fetcher,
		normalizer: normalizer,
		summarizer: summarizer,
		bus:        eventBus,
		clock:      clock,
		ids:        ids,
		logger:     logger,
	}
}

// Execute runs the pipeline for one queued job. Whatever happens, the run is
// left in a terminal status when Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, job focus.RunJob) (err error) {
	logger := o.logger.With(zap.String("run_id", job.RunID), zap.String("query_id", job.QueryID))
	startedAt := o.clock.Now()
	channel := focus.RunChannel(job.RunID)

	if err := o.store.MarkRunning(ctx, job.RunID, startedAt); err != nil {
		logger.Error("mark running failed", zap.Error(err))
		return fmt.Errorf("mark run running: %w", err)
	}

	completed := false
	lastProgress := 0
	failRun := func(cause error) {
		// Terminal closure must land even when the run context itself was
		// canceled; otherwise the run is stranded RUNNING.
		terminalCtx := context.WithoutCancel(ctx)
		finishedAt := o.clock.Now()
		meta := map[string]any{"error": cause.Error()}
		if err := o.store.CompleteRun(terminalCtx, job.RunID, focus.RunFailed, finishedAt, lastProgress, meta); err != nil {
			logger.Error("complete run FAILED write failed", zap.Error(err))
		}
		completed = true
		metrics.ObserveRun(string(focus.RunFailed), finishedAt.Sub(startedAt))
		o.publish(terminalCtx, channel, events.Error("", "", cause.Error()), logger)
	}
	defer func() {
		if completed {
			return
		}
		// Terminal closure guard: covers panics unwinding through Execute
		// and any path that forgot to close the run.
		cause := err
		if cause == nil {
			cause = fmt.Errorf("run aborted")
		}
		failRun(cause)
	}()

	o.publish(ctx, channel, events.Start(fmt.Sprintf("run started for query %s", job.QueryID)), logger)

	query, err := o.store.GetQuery(ctx, job.QueryID)
	if err != nil {
		failRun(fmt.Errorf("load query %s: %w", job.QueryID, err))
		return fmt.Errorf("load query %s: %w", job.QueryID, err)
	}

	raw := o.fetchSources(ctx, job, query, channel, logger)

	cleanItems := o.normalizer.Clean(raw, func(item focus.CleanItem) {
		o.publish(ctx, channel, events.Clean(item.Fingerprint, "item survived deduplication"), logger)
	})
	o.publish(ctx, channel, events.CleanDone(fmt.Sprintf("%d unique items after deduplication", len(cleanItems))), logger)

	summaryCount, err := o.summarizeAndPersist(ctx, job, query, cleanItems, channel, &lastProgress, logger)
	if err != nil {
		failRun(err)
		return err
	}

	finishedAt := o.clock.Now()
	meta := map[string]any{"summaryCount": summaryCount}
	if err := o.store.CompleteRun(ctx, job.RunID, focus.RunSucceeded, finishedAt, 100, meta); err != nil {
		failRun(fmt.Errorf("complete run: %w", err))
		return fmt.Errorf("complete run: %w", err)
	}
	completed = true
	metrics.ObserveRun(string(focus.RunSucceeded), finishedAt.Sub(startedAt))

	o.publish(ctx, channel, events.Done("run complete", &summaryCount), logger)
	logger.Info("run succeeded",
		zap.Int("summary_count", summaryCount),
		zap.Duration("duration", finishedAt.Sub(startedAt)),
	)
	return nil
}

// fetchSources runs every source inside its own failure boundary and returns
// all fetched items in source order.
func (o *Orchestrator) fetchSources(
	ctx context.Context,
	job focus.RunJob,
	query focus.Query,
	channel string,
	logger *zap.Logger,
) []focus.RawItem {
	o.publish(ctx, channel, events.FetchPhase(fmt.Sprintf("fetching %d sources", len(query.Sources))), logger)

	var raw []focus.RawItem
	for _, src := range query.Sources {
		if err := src.Validate(); err != nil {
			logger.Warn("skipping source", zap.String("source_id", src.ID), zap.Error(err))
			o.publish(ctx, channel, events.Error(src.ID, "", fmt.Sprintf("source %s skipped: %v", src.ID, err)), logger)
			continue
		}

		driver := focus.ResolveDriver(src)
		o.publish(ctx, channel, events.FetchDriver(src.ID, string(driver),
			fmt.Sprintf("fetching source %s with driver %s", src.Name, driver)), logger)

		items, err := o.fetcher.Fetch(ctx, fetch.Request{RunID: job.RunID, Source: src, Driver: driver})
		if err != nil {
			metrics.ObserveSourceFetch(string(src.Type), "error")
			logger.Warn("source fetch failed", zap.String("source_id", src.ID), zap.Error(err))
			o.publish(ctx, channel, events.Error(src.ID, string(driver), fmt.Sprintf("source %s failed: %v", src.ID, err)), logger)
			continue
		}
		metrics.ObserveSourceFetch(string(src.Type), "success")
		raw = append(raw, items...)
		o.publish(ctx, channel, events.FetchSuccess(src.ID, string(driver), len(items),
			fmt.Sprintf("source %s returned %d items", src.Name, len(items))), logger)
	}
	return raw
}

// summarizeAndPersist walks the clean items in order, persisting each
// summarized item before advancing progress. The first summarization or
// store failure aborts the loop; already persisted items stay.
func (o *Orchestrator) summarizeAndPersist(
	ctx context.Context,
	job focus.RunJob,
	query focus.Query,
	items []focus.CleanItem,
	channel string,
	lastProgress *int,
	logger *zap.Logger,
) (int, error) {
	total := len(items)
	if total == 0 {
		return 0, nil
	}

	keywordIDs := make([]string, 0, len(query.Keywords))
	keywordTexts := make([]string, 0, len(query.Keywords))
	for _, k := range query.Keywords {
		keywordIDs = append(keywordIDs, k.ID)
		keywordTexts = append(keywordTexts, k.Text)
	}

	done := 0
	for _, item := range items {
		o.publish(ctx, channel, events.Summary(fmt.Sprintf("summarizing item from %s", item.Platform)), logger)

		result, err := o.summarizer.Summarize(ctx, item, query.Keywords, func(e events.Event) {
			switch e.Type {
			case events.TypeSummarySuccess:
				metrics.ObserveSummaryAttempt("success")
			case events.TypeSummaryError:
				metrics.ObserveSummaryAttempt("error")
			}
			o.publish(ctx, channel, e, logger)
		})
		if err != nil {
			return done, fmt.Errorf("summarize item %s: %w", item.Fingerprint, err)
		}

		if err := o.persistContent(ctx, item, result, keywordIDs, keywordTexts); err != nil {
			return done, err
		}

		done++
		progress := 100 * done / total
		if err := o.store.UpdateProgress(ctx, job.RunID, progress); err != nil {
			return done, fmt.Errorf("update progress: %w", err)
		}
		*lastProgress = progress
		o.publish(ctx, channel, events.Progress(progress,
			fmt.Sprintf("persisted %d of %d items", done, total)), logger)
	}
	return done, nil
}

func (o *Orchestrator) persistContent(
	ctx context.Context,
	item focus.CleanItem,
	result summary.Result,
	keywordIDs []string,
	keywordTexts []string,
) error {
	contentID, err := o.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate content id: %w", err)
	}

	contentTime := o.clock.Now()
	if item.PublishedAt != nil {
		contentTime = *item.PublishedAt
	}

	content := focus.Content{
		ID:       contentID,
		Title:    item.Title,
		Summary:  result.Summary,
		Markdown: item.Markdown,
		Platform: item.Platform,
		Type:     focus.ContentTypeFor(item.SourceType),
		Time:     contentTime,
		URL:      item.URL,
		Meta: map[string]any{
			"relevance":   result.Relevant,
			"fingerprint": item.Fingerprint,
			"sourceId":    item.SourceID,
			"sourceType":  string(item.SourceType),
			"driver":      string(item.Driver),
			"keywords":    keywordTexts,
		},
	}
	if item.SnapshotURI != "" {
		content.Meta["snapshot"] = item.SnapshotURI
	}
	if err := o.store.InsertContent(ctx, content); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	if err := o.store.InsertContentKeywords(ctx, contentID, keywordIDs); err != nil {
		return fmt.Errorf("insert content keywords: %w", err)
	}
	metrics.ObserveContentPersisted()
	return nil
}

// publish sends one event frame to the run channel. Delivery is best effort;
// a publish failure never fails the run.
func (o *Orchestrator) publish(ctx context.Context, channel string, event events.Event, logger *zap.Logger) {
	frame, err := event.Marshal()
	if err != nil {
		logger.Warn("event marshal failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return
	}
	if err := o.bus.Publish(ctx, channel, frame); err != nil {
		logger.Warn("event publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

var _ Normalizer = (*normalize.Normalizer)(nil)
