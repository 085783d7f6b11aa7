package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/events"
	"github.com/focusops/focus-collector/internal/focus"
)

const (
	maxAttempts      = 3
	backoffStep      = 500 * time.Millisecond
	minSummaryLength = 30

	// excerptLimit bounds how much fetched text is embedded in the prompt.
	excerptLimit = 6000
)

// Result is the validated model verdict for one item.
type Result struct {
	Summary  string `json:"summary"`
	Relevant bool   `json:"relevance"`
}

// Summarizer asks the gateway for a relevance verdict per clean item, with a
// bounded linear-backoff retry.
type Summarizer struct {
	gateway Gateway
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// New builds a Summarizer.
func New(gateway Gateway, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		gateway: gateway,
		sleep:   sleepContext,
		logger:  logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Summarize produces a verdict for one item. Each failed attempt emits a
// summary-error event; success emits summary-success. The error returned
// after the final attempt carries the last failure.
func (s *Summarizer) Summarize(
	ctx context.Context,
	item focus.CleanItem,
	keywords []focus.Keyword,
	emit func(events.Event),
) (Result, error) {
	if emit == nil {
		emit = func(events.Event) {}
	}
	prompt := buildPrompt(item, keywords)
	source := item.Platform
	if source == "" {
		source = item.SourceID
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := s.gateway.Complete(ctx, prompt)
		if err == nil {
			var result Result
			result, err = decodeResult(raw)
			if err == nil {
				emit(events.SummarySuccess(attempt, source))
				return result, nil
			}
		}

		lastErr = err
		s.logger.Warn("summarization attempt failed",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		emit(events.SummaryError(attempt, source, err.Error()))

		if attempt == maxAttempts {
			break
		}
		if err := s.sleep(ctx, backoffStep*time.Duration(attempt)); err != nil {
			return Result{}, fmt.Errorf("summarize %s: %w", source, err)
		}
	}
	return Result{}, fmt.Errorf("summarize %s: %d attempts failed: %w", source, maxAttempts, lastErr)
}

// keywordDisplay joins keyword texts for the prompt.
func keywordDisplay(keywords []focus.Keyword) string {
	texts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if t := strings.TrimSpace(k.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "no specific keywords"
	}
	return strings.Join(texts, ", ")
}

// injectionMarkers flag lines of fetched text that read like instructions to
// the model rather than content. Such lines are dropped before embedding.
var injectionMarkers = []string{
	"ignore previous",
	"ignore all previous",
	"disregard the above",
	"disregard previous",
	"system prompt",
	"you are now",
	"new instructions",
}

func stripInjection(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		suspicious := false
		for _, marker := range injectionMarkers {
			if strings.Contains(lower, marker) {
				suspicious = true
				break
			}
		}
		if !suspicious {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func buildPrompt(item focus.CleanItem, keywords []focus.Keyword) string {
	body := truncateRunes(stripInjection(item.Text), excerptLimit)

	var b strings.Builder
	b.WriteString("You are reviewing collected open-source intelligence content.\n")
	fmt.Fprintf(&b, "Monitoring keywords: %s.\n\n", keywordDisplay(keywords))
	fmt.Fprintf(&b, "Title: %s\nPlatform: %s\n\nContent:\n%s\n\n", item.Title, item.Platform, body)
	b.WriteString("In 2-3 sentences, explain what this content is about and whether it is ")
	b.WriteString("relevant to the monitoring keywords.\n")
	b.WriteString(`Respond with strict JSON only, no prose around it: {"summary": "<2-3 sentences>", "relevance": <true|false>}`)
	return b.String()
}

// decodeResult parses and validates the model reply. Code fences and
// surrounding prose are tolerated as long as one JSON object is present.
func decodeResult(raw string) (Result, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("reply contains no JSON object")
	}

	var payload struct {
		Summary   *string `json:"summary"`
		Relevance *bool   `json:"relevance"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	if payload.Summary == nil || payload.Relevance == nil {
		return Result{}, fmt.Errorf("reply missing summary or relevance")
	}
	summary := strings.TrimSpace(*payload.Summary)
	if utf8.RuneCountInString(summary) < minSummaryLength {
		return Result{}, fmt.Errorf("summary shorter than %d characters", minSummaryLength)
	}
	return Result{Summary: summary, Relevant: *payload.Relevance}, nil
}
