package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
)

// searchRequest is the body posted to a search relay endpoint.
type searchRequest struct {
	Query   string            `json:"query"`
	Options map[string]string `json:"options,omitempty"`
}

// searchResponse is the expected relay reply.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Snippet     string     `json:"snippet"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (i searchItem) body() string {
	if i.Snippet != "" {
		return i.Snippet
	}
	return i.Summary
}

// fetchSearch queries a search relay endpoint and maps each result to a raw
// item. A source without an endpoint yields a single synthetic item so the
// run still produces inspectable output. A reply that does not parse as the
// expected shape yields zero items without failing the source; only
// transport-level failures are errors.
func (d *Dispatcher) fetchSearch(ctx context.Context, req Request) ([]focus.RawItem, error) {
	cfg := req.Source.Search

	if cfg.APIEndpoint == "" {
		text := fmt.Sprintf("search query %q on %s (no API endpoint configured)", cfg.Query, cfg.Engine)
		item := focus.RawItem{
			Title:      fmt.Sprintf("%s search: %s", cfg.Engine, cfg.Query),
			Text:       text,
			Markdown:   text,
			Platform:   platformLabel(req.Source),
			SourceID:   req.Source.ID,
			SourceType: req.Source.Type,
			Driver:     req.Driver,
		}
		return []focus.RawItem{item}, nil
	}

	body := searchRequest{Query: cfg.Query}
	if cfg.Engine != "" {
		body.Options = map[string]string{"engine": cfg.Engine}
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(cfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", cfg.APIEndpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search %s: unexpected status %d", cfg.APIEndpoint, resp.StatusCode())
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		d.logger.Warn("search reply did not parse, dropping results",
			zap.String("run_id", req.RunID),
			zap.String("source_id", req.Source.ID),
			zap.String("endpoint", cfg.APIEndpoint),
			zap.Error(err),
		)
		return nil, nil
	}

	items := make([]focus.RawItem, 0, len(parsed.Items))
	for _, r := range parsed.Items {
		if r.Title == "" && r.body() == "" {
			continue
		}
		items = append(items, focus.RawItem{
			Title:       r.Title,
			Text:        r.body(),
			Markdown:    r.body(),
			Platform:    platformLabel(req.Source),
			URL:         r.Link,
			PublishedAt: r.PublishedAt,
			SourceID:    req.Source.ID,
			SourceType:  req.Source.Type,
			Driver:      req.Driver,
		})
	}
	return items, nil
}
