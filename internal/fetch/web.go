package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
)

// fetchWeb performs a timed GET against the source URL and extracts one item
// from the response body. It backs all three named drivers for WEB and
// DARKNET sources.
func (d *Dispatcher) fetchWeb(ctx context.Context, req Request) ([]focus.RawItem, error) {
	url := req.Source.Web.URL

	var (
		statusCode int
		body       []byte
		fetchErr   error
	)

	collector := d.collector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(d.cfg.Timeout)
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := d.runCollector(ctx, collector, url); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if statusCode < 200 || statusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, statusCode)
	}

	snapshotURI := d.snapshot(ctx, req, body)

	ext, err := d.extractHTML(body, url)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}

	now := time.Now().UTC()
	item := focus.RawItem{
		Title:       ext.Title,
		Text:        ext.Text,
		Markdown:    ext.Markdown,
		Platform:    platformLabel(req.Source),
		URL:         url,
		PublishedAt: &now,
		SourceID:    req.Source.ID,
		SourceType:  req.Source.Type,
		Driver:      req.Driver,
		SnapshotURI: snapshotURI,
	}

	d.logger.Debug("fetched web source",
		zap.String("run_id", req.RunID),
		zap.String("source_id", req.Source.ID),
		zap.String("url", url),
		zap.Int("status", statusCode),
		zap.Int("body_bytes", len(body)),
		zap.String("snapshot", snapshotURI),
	)

	return []focus.RawItem{item}, nil
}

func (d *Dispatcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil
	}
}

// snapshot archives the raw response body. Archiving is best effort; a
// failure is logged and the fetch proceeds.
func (d *Dispatcher) snapshot(ctx context.Context, req Request, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	name := fmt.Sprintf("%d.html", time.Now().UnixNano())
	if d.hasher != nil {
		if digest, err := d.hasher.Hash(body); err == nil {
			name = digest + ".html"
		}
	}
	path := fmt.Sprintf("%s/%s/%s", req.RunID, req.Source.ID, name)
	uri, err := d.archive.Put(ctx, path, "text/html", body)
	if err != nil {
		d.logger.Warn("snapshot archive failed",
			zap.String("run_id", req.RunID),
			zap.String("source_id", req.Source.ID),
			zap.Error(err),
		)
		return ""
	}
	return uri
}
