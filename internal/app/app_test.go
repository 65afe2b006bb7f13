package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"ArticleHarvester/internal/config"
	"ArticleHarvester/internal/infrastructure/cache"
	"ArticleHarvester/internal/logging"
)

const listingHTML = `<html><body><ul>
<li class="post"><a href="/p/1">Go generics in practice</a></li>
<li class="post"><a href="/p/2">Postgres vacuum explained</a></li>
<li class="post"><a href="/p/3">go generics   IN practice</a></li>
</ul></body></html>`

const postHTML = `<html><body><article><p>Body text.</p></article></body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/p/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(postHTML))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(listURL string) config.Config {
	return config.Config{
		Logging: config.LoggingConfig{Level: "debug"},
		Redis:   config.RedisConfig{TTL: time.Hour},
		Classifier: config.ClassifierConfig{
			Categories: []config.CategoryRule{
				{ID: 1, Name: "Go", Keywords: []string{"go"}},
				{ID: 2, Name: "Databases", Keywords: []string{"postgres"}},
			},
		},
		Scheduler: config.SchedulerConfig{ShutdownTimeout: time.Second, HTTPTimeout: 5 * time.Second},
		Sites: []config.SiteConfig{
			{
				Name:         "blog",
				Scanner:      "selector",
				InitialDelay: time.Hour,
				Period:       time.Hour,
				Options: map[string]string{
					"listURL":         listURL,
					"itemSelector":    "li.post",
					"contentSelector": "article",
				},
			},
		},
	}
}

func TestRunOnceHarvestsIntoRedis(t *testing.T) {
	server := newSiteServer(t)
	mr := miniredis.RunT(t)

	cfg := testConfig(server.URL + "/list")
	cfg.Redis.Address = mr.Addr()

	var logs bytes.Buffer
	application, err := New(context.Background(), cfg, logging.NewWithWriter(&logs, "debug"))
	require.NoError(t, err)
	t.Cleanup(application.Close)
	require.Equal(t, []string{"blog"}, application.Sources())

	report, err := application.RunOnce(context.Background(), "blog")
	require.NoError(t, err)
	require.Equal(t, 3, report.Fetched)
	require.Equal(t, 2, report.Deduplicated)
	require.Equal(t, 2, report.Persisted)
	require.True(t, mr.Exists(cache.TitleKey("go generics in practice")))
	require.True(t, mr.Exists(cache.TitleKey("postgres vacuum explained")))

	members, err := mr.ZMembers(cache.CategoryKey(2))
	require.NoError(t, err)
	require.Len(t, members, 1)

	report, err = application.RunOnce(context.Background(), "blog")
	require.NoError(t, err)
	require.Equal(t, 0, report.Persisted)
	require.Contains(t, logs.String(), "batch analyzed")
}

func TestNewRejectsUnknownScanner(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1/list")
	cfg.Sites[0].Scanner = "rss"

	_, err := New(context.Background(), cfg, logging.NewWithWriter(&bytes.Buffer{}, "error"))
	require.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1/list")
	cfg.Sites[0].Period = 0

	_, err := New(context.Background(), cfg, logging.NewWithWriter(&bytes.Buffer{}, "error"))
	require.Error(t, err)
}

func TestNewFailsWhenRedisIsUnreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig("http://127.0.0.1/list")
	cfg.Redis.Address = addr

	_, err := New(context.Background(), cfg, logging.NewWithWriter(&bytes.Buffer{}, "error"))
	require.ErrorContains(t, err, "dedup store")
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1/list")
	cfg.Metrics.Address = "127.0.0.1:0"

	application, err := New(context.Background(), cfg, logging.NewWithWriter(&bytes.Buffer{}, "error"))
	require.NoError(t, err)
	t.Cleanup(application.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
