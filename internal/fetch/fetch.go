// Package fetch implements the per-source-type fetch dispatcher and the named
// fetch drivers behind the driver resolver.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/go-resty/resty/v2"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/archive"
	"github.com/focusops/focus-collector/internal/focus"
)

// DefaultTimeout bounds one source fetch.
const DefaultTimeout = 15 * time.Second

// Request carries everything needed to fetch one source.
type Request struct {
	RunID  string
	Source focus.Source
	Driver focus.Driver
}

// DriverFunc fetches one WEB/DARKNET source and returns zero or more raw
// items.
type DriverFunc func(ctx context.Context, req Request) ([]focus.RawItem, error)

// Hasher names snapshot paths by content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config controls dispatcher behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Dispatcher routes one source to its type-specific fetch path. WEB/DARKNET
// sources go through the named driver registry; SEARCH_ENGINE and
// SOCIAL_MEDIA sources always use their own path regardless of the resolved
// driver label.
type Dispatcher struct {
	cfg       Config
	drivers   map[focus.Driver]DriverFunc
	collector *colly.Collector
	http      *resty.Client
	markdown  *converter.Converter
	archive   archive.Store
	hasher    Hasher
	logger    *zap.Logger
}

// New constructs a Dispatcher with the three built-in drivers registered.
// The playwright and ai drivers currently delegate to the plain HTTP path;
// RegisterDriver swaps in a real implementation without touching callers.
func New(cfg Config, snapshots archive.Store, hasher Hasher, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if snapshots == nil {
		snapshots = archive.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:       cfg,
		drivers:   make(map[focus.Driver]DriverFunc),
		collector: colly.NewCollector(colly.Async(false)),
		http:      resty.New().SetTimeout(cfg.Timeout),
		markdown:  newMarkdownConverter(),
		archive:   snapshots,
		hasher:    hasher,
		logger:    logger,
	}
	d.drivers[focus.DriverFetch] = d.fetchWeb
	d.drivers[focus.DriverPlaywright] = d.fetchWeb
	d.drivers[focus.DriverAI] = d.fetchWeb
	return d
}

// RegisterDriver registers or replaces a named driver.
func (d *Dispatcher) RegisterDriver(name focus.Driver, fn DriverFunc) {
	d.drivers[name] = fn
}

// Fetch resolves the source's fetch path and executes it.
func (d *Dispatcher) Fetch(ctx context.Context, req Request) ([]focus.RawItem, error) {
	if err := req.Source.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", req.Source.ID, err)
	}
	switch req.Source.Type {
	case focus.SourceWeb, focus.SourceDarknet:
		fn, ok := d.drivers[req.Driver]
		if !ok {
			fn = d.drivers[focus.DriverFetch]
		}
		return fn(ctx, req)
	case focus.SourceSearchEngine:
		return d.fetchSearch(ctx, req)
	case focus.SourceSocialMedia:
		return d.fetchSocial(req)
	default:
		return nil, fmt.Errorf("unsupported source type %q", req.Source.Type)
	}
}

// platformLabel names the platform recorded on raw items for a source.
func platformLabel(src focus.Source) string {
	switch src.Type {
	case focus.SourceSearchEngine:
		if src.Search != nil && src.Search.Engine != "" {
			return src.Search.Engine
		}
	case focus.SourceSocialMedia:
		if src.Social != nil && src.Social.Platform != "" {
			return src.Social.Platform
		}
	}
	if src.Name != "" {
		return src.Name
	}
	return strings.ToLower(string(src.Type))
}

// fetchSocial synthesizes one item from the source's config map. No network
// call is made; the dump exists for operator inspection.
func (d *Dispatcher) fetchSocial(req Request) ([]focus.RawItem, error) {
	cfg := req.Source.Social

	keys := make([]string, 0, len(cfg.Config))
	for k := range cfg.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "platform: %s\n", cfg.Platform)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, cfg.Config[k])
	}
	body := strings.TrimRight(b.String(), "\n")

	item := focus.RawItem{
		Title:      fmt.Sprintf("%s source configuration", cfg.Platform),
		Text:       body,
		Markdown:   body,
		Platform:   platformLabel(req.Source),
		SourceID:   req.Source.ID,
		SourceType: req.Source.Type,
		Driver:     req.Driver,
	}
	return []focus.RawItem{item}, nil
}
