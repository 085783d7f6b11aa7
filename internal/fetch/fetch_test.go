package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivemem "github.com/focusops/focus-collector/internal/archive/memory"
	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/hash/sha256"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Quarterly Update</title></head>
<body>
  <script>console.log("noise")</script>
  <p>First paragraph of the report.</p>
  <p>Second paragraph with details.</p>
</body>
</html>`

func newTestDispatcher(t *testing.T) (*Dispatcher, *archivemem.Store) {
	t.Helper()
	snapshots := archivemem.New()
	d := New(Config{}, snapshots, sha256.New(), zap.NewNop())
	return d, snapshots
}

func webSource(url string, engine focus.CrawlerEngine) focus.Source {
	return focus.Source{
		ID:   "src-web",
		Name: "example",
		Type: focus.SourceWeb,
		Web:  &focus.WebConfig{URL: url, Engine: engine},
	}
}

func TestFetch_WebProducesOneItemWithMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	d, snapshots := newTestDispatcher(t)
	items, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: webSource(srv.URL, focus.EngineFetch),
		Driver: focus.DriverFetch,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Quarterly Update", item.Title)
	assert.Equal(t, "First paragraph of the report.\nSecond paragraph with details.", item.Text)
	assert.Contains(t, item.Markdown, "First paragraph of the report.")
	assert.Contains(t, item.Markdown, "\n\n")
	assert.NotContains(t, item.Markdown, "console.log")
	assert.Equal(t, srv.URL, item.URL)
	assert.Equal(t, focus.SourceWeb, item.SourceType)
	assert.Equal(t, focus.DriverFetch, item.Driver)
	require.NotNil(t, item.PublishedAt)

	assert.Equal(t, 1, snapshots.Len(), "raw body should be archived")
	assert.NotEmpty(t, item.SnapshotURI)
}

func TestFetch_WebMissingTitleGetsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html><body><p>no title here</p></body></html>")
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(t)
	items, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: webSource(srv.URL, focus.EngineFetch),
		Driver: focus.DriverFetch,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, PlaceholderTitle, items[0].Title)
}

func TestFetch_WebNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, snapshots := newTestDispatcher(t)
	_, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: webSource(srv.URL, focus.EngineFetch),
		Driver: focus.DriverFetch,
	})
	require.Error(t, err)
	assert.Equal(t, 0, snapshots.Len())
}

func TestFetch_PlaywrightDriverUsesHTTPPath(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(t)
	items, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: webSource(srv.URL, focus.EnginePlaywright),
		Driver: focus.DriverPlaywright,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, hits)
	assert.Equal(t, focus.DriverPlaywright, items[0].Driver)
}

func TestFetch_RegisteredDriverOverridesBuiltin(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterDriver(focus.DriverAI, func(_ context.Context, req Request) ([]focus.RawItem, error) {
		return []focus.RawItem{{Title: "custom", SourceID: req.Source.ID}}, nil
	})

	items, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: webSource("http://unused.invalid", focus.EngineCustom),
		Driver: focus.DriverAI,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "custom", items[0].Title)
}

func TestFetch_SearchRelayMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ransomware leak", req.Query)
		assert.Equal(t, map[string]string{"engine": "duckduckgo"}, req.Options)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{Items: []searchItem{
			{Title: "Hit one", Link: "https://a.example", Snippet: "first snippet"},
			{Title: "Hit two", Link: "https://b.example", Summary: "second snippet"},
			{},
		}})
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(t)
	src := focus.Source{
		ID:   "src-search",
		Name: "relay",
		Type: focus.SourceSearchEngine,
		Search: &focus.SearchEngineConfig{
			Query:       "ransomware leak",
			Engine:      "duckduckgo",
			APIEndpoint: srv.URL,
		},
	}

	items, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.NoError(t, err)
	require.Len(t, items, 2, "empty results are skipped")
	assert.Equal(t, "Hit one", items[0].Title)
	assert.Equal(t, "first snippet", items[0].Text)
	assert.Equal(t, "duckduckgo", items[0].Platform)
	assert.Equal(t, focus.SourceSearchEngine, items[0].SourceType)
}

func TestFetch_SearchWithoutEndpointYieldsPlaceholderItem(t *testing.T) {
	d, _ := newTestDispatcher(t)
	src := focus.Source{
		ID:   "src-search",
		Name: "relay",
		Type: focus.SourceSearchEngine,
		Search: &focus.SearchEngineConfig{
			Query:  "data breach",
			Engine: "bing",
		},
	}

	items, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Text, "data breach")
	assert.Equal(t, "bing", items[0].Platform)
}

func TestFetch_SearchUnparsableReplyYieldsZeroItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "this is not json")
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(t)
	src := focus.Source{
		ID:   "src-search",
		Name: "relay",
		Type: focus.SourceSearchEngine,
		Search: &focus.SearchEngineConfig{
			Query:       "anything",
			Engine:      "bing",
			APIEndpoint: srv.URL,
		},
	}

	items, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.NoError(t, err, "a garbled reply is not a source failure")
	assert.Empty(t, items)
}

func TestFetch_SearchTransportErrorFailsSource(t *testing.T) {
	d, _ := newTestDispatcher(t)
	src := focus.Source{
		ID:   "src-search",
		Name: "relay",
		Type: focus.SourceSearchEngine,
		Search: &focus.SearchEngineConfig{
			Query:       "anything",
			Engine:      "bing",
			APIEndpoint: "http://127.0.0.1:1",
		},
	}

	_, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.Error(t, err)
}

func TestFetch_SocialDumpsConfigDeterministically(t *testing.T) {
	d, _ := newTestDispatcher(t)
	src := focus.Source{
		ID:   "src-social",
		Name: "telegram-monitor",
		Type: focus.SourceSocialMedia,
		Social: &focus.SocialMediaConfig{
			Platform: "telegram",
			Config: map[string]string{
				"channel": "leaks",
				"api_id":  "12345",
			},
		},
	}

	first, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.NoError(t, err)
	second, err := d.Fetch(context.Background(), Request{RunID: "run-1", Source: src, Driver: focus.DriverFetch})
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, first[0].Text, second[0].Text, "config dump must be stable across calls")
	assert.Equal(t, "platform: telegram\napi_id: 12345\nchannel: leaks", first[0].Text)
	assert.Equal(t, "telegram", first[0].Platform)
}

func TestFetch_InvalidSourceRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Fetch(context.Background(), Request{
		RunID:  "run-1",
		Source: focus.Source{ID: "src-bad", Type: focus.SourceWeb},
		Driver: focus.DriverFetch,
	})
	require.ErrorIs(t, err, focus.ErrMissingSourceConfig)
}
