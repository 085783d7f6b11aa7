// Package focus defines core domain types shared across subsystems.
package focus

import (
	"errors"
	"time"
)

// SourceType classifies where content originates.
type SourceType string

// Source types persisted on Source records.
const (
	SourceWeb          SourceType = "WEB"
	SourceDarknet      SourceType = "DARKNET"
	SourceSearchEngine SourceType = "SEARCH_ENGINE"
	SourceSocialMedia  SourceType = "SOCIAL_MEDIA"
)

// CrawlerEngine is the configured rendering engine for WEB/DARKNET sources.
type CrawlerEngine string

// Crawler engine values stored in web source configs.
const (
	EngineFetch      CrawlerEngine = "FETCH"
	EnginePlaywright CrawlerEngine = "PLAYWRIGHT"
	EnginePuppeteer  CrawlerEngine = "PUPPETEER"
	EngineCustom     CrawlerEngine = "CUSTOM"
)

// Driver names a fetch strategy selected for a source.
type Driver string

// Known driver names. DriverPlaywright and DriverAI currently delegate to the
// same HTTP fetch path as DriverFetch; the name is a stable seam so a real
// browser or AI-guided implementation can be registered later.
const (
	DriverFetch      Driver = "fetch"
	DriverPlaywright Driver = "playwright"
	DriverAI         Driver = "ai"
)

// ErrMissingSourceConfig signals a source whose type-specific config record is
// absent. Such sources are skipped, never dereferenced.
var ErrMissingSourceConfig = errors.New("source config missing for type")

// WebConfig configures WEB and DARKNET sources.
type WebConfig struct {
	URL    string        `json:"url"`
	Engine CrawlerEngine `json:"crawlerEngine"`
}

// SearchEngineConfig configures SEARCH_ENGINE sources.
type SearchEngineConfig struct {
	Query       string `json:"query"`
	Engine      string `json:"engine"`
	APIEndpoint string `json:"apiEndpoint"`
}

// SocialMediaConfig configures SOCIAL_MEDIA sources.
type SocialMediaConfig struct {
	Platform string            `json:"platform"`
	Config   map[string]string `json:"config"`
}

// Source is a configured origin of content. Exactly one of the config fields
// matching Type is expected to be non-nil.
type Source struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Type   SourceType          `json:"type"`
	Web    *WebConfig          `json:"web,omitempty"`
	Search *SearchEngineConfig `json:"search,omitempty"`
	Social *SocialMediaConfig  `json:"social,omitempty"`
}

// Validate checks that the config variant matching Type is present.
func (s Source) Validate() error {
	switch s.Type {
	case SourceWeb, SourceDarknet:
		if s.Web == nil {
			return ErrMissingSourceConfig
		}
	case SourceSearchEngine:
		if s.Search == nil {
			return ErrMissingSourceConfig
		}
	case SourceSocialMedia:
		if s.Social == nil {
			return ErrMissingSourceConfig
		}
	default:
		return errors.New("unknown source type")
	}
	return nil
}

// Keyword is one search term attached to a query.
type Keyword struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Query is an operator-defined collection target. The pipeline treats it as
// read-only; the administrative layer owns its lifecycle.
type Query struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Frequency string    `json:"frequency"`
	Keywords  []Keyword `json:"keywords"`
	Sources   []Source  `json:"sources"`
}

// RunStatus is the lifecycle state of a collection run.
type RunStatus string

// Run statuses persisted in query_runs.status.
const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// Terminal reports whether the status permits no further writes.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// QueryRun is one execution of the pipeline for one query. It is created
// PENDING by the enqueue step, mutated only by the orchestrator, and
// immutable once terminal.
type QueryRun struct {
	ID         string         `json:"id"`
	QueryID    string         `json:"queryId"`
	Status     RunStatus      `json:"status"`
	Progress   int            `json:"progress"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// RawItem is one fetched unit before normalization. SnapshotURI points at the
// archived raw body when snapshot archiving is enabled.
type RawItem struct {
	Title       string
	Text        string
	Markdown    string
	Platform    string
	URL         string
	PublishedAt *time.Time
	SourceID    string
	SourceType  SourceType
	Driver      Driver
	SnapshotURI string
}

// CleanItem is a normalized, fingerprinted, not-yet-summarized item. It lives
// only for one pipeline execution.
type CleanItem struct {
	RawItem
	Fingerprint string
}

// ContentType classifies persisted content records.
type ContentType string

// Content types stored on Content rows.
const (
	ContentWeb     ContentType = "Web"
	ContentClient  ContentType = "Client"
	ContentDarknet ContentType = "Darknet"
)

// ContentTypeFor maps a source type to the persisted content type.
func ContentTypeFor(t SourceType) ContentType {
	switch t {
	case SourceDarknet:
		return ContentDarknet
	case SourceSocialMedia:
		return ContentClient
	default:
		return ContentWeb
	}
}

// Content is one summarized item persisted by the orchestrator. There is no
// update path; rows are immutable after insert.
type Content struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Markdown string         `json:"markdown"`
	Platform string         `json:"platform"`
	Type     ContentType    `json:"type"`
	Time     time.Time      `json:"time"`
	URL      string         `json:"url,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// RunJob is the queue payload scheduling one orchestrator execution.
type RunJob struct {
	RunID     string `json:"run_id"`
	QueryID   string `json:"query_id"`
	Attempt   int    `json:"attempt"`
	Submitted int64  `json:"submitted"`
}

// RunChannel returns the bus channel name for a run's event stream.
func RunChannel(runID string) string {
	return "run:" + runID
}
