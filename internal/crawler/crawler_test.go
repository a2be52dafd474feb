package crawler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/domain-crawler/internal/config"
	"github.com/alvmarrod/domain-crawler/internal/fetch"
	"github.com/alvmarrod/domain-crawler/internal/metrics"
	"github.com/alvmarrod/domain-crawler/internal/storage"
)

// fakePage is one canned response of a fakeSite
type fakePage struct {
	status int
	body   string
	// redirect is reported as the final URL instead of the requested one
	redirect string
	err      error
	// failFirst makes the first n fetches return err
	failFirst int
}

// fakeSite serves canned pages by absolute URL. Unknown URLs are 404s.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]fakePage
	hits  map[string]int
	delay time.Duration
	// onFetch runs at the start of every fetch; the site never looks at ctx
	onFetch func(rawURL string)
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{pages: pages, hits: make(map[string]int)}
}

func (s *fakeSite) Fetch(_ context.Context, rawURL string) (*fetch.Result, error) {
	s.mu.Lock()
	s.hits[rawURL]++
	n := s.hits[rawURL]
	page, ok := s.pages[rawURL]
	s.mu.Unlock()

	if s.onFetch != nil {
		s.onFetch(rawURL)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	if !ok {
		return &fetch.Result{FinalURL: rawURL, StatusCode: http.StatusNotFound, ContentType: "text/html"}, nil
	}
	if page.err != nil && (page.failFirst == 0 || n <= page.failFirst) {
		return nil, page.err
	}

	final := rawURL
	if page.redirect != "" {
		final = page.redirect
	}
	status := page.status
	if status == 0 {
		status = http.StatusOK
	}
	return &fetch.Result{
		FinalURL:    final,
		StatusCode:  status,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(page.body),
	}, nil
}

func (s *fakeSite) Hits(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[rawURL]
}

// recordingSink keeps records in memory
type recordingSink struct {
	mu      sync.Mutex
	records []storage.PageRecord
	closed  bool
	err     error
}

func (s *recordingSink) Record(rec storage.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.records))
	for _, r := range s.records {
		urls = append(urls, r.URL)
	}
	return urls
}

func htmlPage(title string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testConfig(seed string, maxDepth int) *config.Config {
	cfg := config.Default()
	cfg.SeedURL = seed
	cfg.MaxDepth = maxDepth
	cfg.DelaySeconds = 0
	return &cfg
}

func runCrawl(t *testing.T, cfg *config.Config, site *fakeSite) (*recordingSink, *metrics.Tracker, Summary) {
	t.Helper()

	sink := &recordingSink{}
	tracker := metrics.NewTracker()
	c, err := NewCrawler(cfg, Deps{Fetcher: site, Sink: sink, Metrics: tracker})
	require.NoError(t, err)
	assert.Equal(t, StateInit, c.State())

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDrained, c.State())
	assert.True(t, sink.closed)
	return sink, tracker, summary
}

func TestCrawlExampleGraph(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":      {body: htmlPage("Home", "/a", "https://sub.example.com/b", "https://other.com/c")},
		"https://example.com/a":     {body: htmlPage("A", "/deeper")},
		"https://sub.example.com/b": {body: htmlPage("B")},
	})

	sink, _, summary := runCrawl(t, testConfig("https://example.com/", 1), site)

	assert.Equal(t, []storage.PageRecord{
		{URL: "https://example.com/", Depth: 0, Title: "Home", Status: 200},
		{URL: "https://example.com/a", Depth: 1, Title: "A", Status: 200},
		{URL: "https://sub.example.com/b", Depth: 1, Title: "B", Status: 200},
	}, sink.records)

	assert.Zero(t, site.Hits("https://other.com/c"))
	assert.Zero(t, site.Hits("https://example.com/deeper"), "depth-1 pages are not expanded")
	assert.Equal(t, "example.com", summary.BaseDomain)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, ReasonDrained, summary.Reason)
	assert.Zero(t, summary.Pending)
}

func TestCrawlDepthBound(t *testing.T) {
	t.Parallel()

	chain := func() *fakeSite {
		return newFakeSite(map[string]fakePage{
			"https://example.com/":  {body: htmlPage("0", "/1")},
			"https://example.com/1": {body: htmlPage("1", "/2")},
			"https://example.com/2": {body: htmlPage("2", "/3")},
			"https://example.com/3": {body: htmlPage("3")},
		})
	}

	tests := []struct {
		name     string
		maxDepth int
		want     int
	}{
		{"seed only", 0, 1},
		{"two levels", 2, 3},
		{"unbounded", -1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, _, _ := runCrawl(t, testConfig("https://example.com/", tt.maxDepth), chain())

			require.Len(t, sink.records, tt.want)
			for i, rec := range sink.records {
				assert.Equal(t, i, rec.Depth)
				assert.Equal(t, fmt.Sprint(i), rec.Title)
				if tt.maxDepth >= 0 {
					assert.LessOrEqual(t, rec.Depth, tt.maxDepth)
				}
			}
		})
	}
}

func TestCrawlBreadthFirstOrder(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":   {body: htmlPage("root", "/a", "/b")},
		"https://example.com/a":  {body: htmlPage("a", "/a1", "/b")},
		"https://example.com/b":  {body: htmlPage("b", "/b1", "/")},
		"https://example.com/a1": {body: htmlPage("a1")},
		"https://example.com/b1": {body: htmlPage("b1", "/a")},
	})

	sink, _, _ := runCrawl(t, testConfig("https://example.com/", -1), site)

	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/a1",
		"https://example.com/b1",
	}, sink.URLs())

	depths := make(map[string]int)
	for _, rec := range sink.records {
		depths[rec.URL] = rec.Depth
	}
	assert.Equal(t, 1, depths["https://example.com/b"], "depth is the shortest discovery distance")
	assert.Equal(t, 2, depths["https://example.com/b1"])
}

func TestCrawlNoDuplicatesUnderConcurrency(t *testing.T) {
	t.Parallel()

	const n = 30
	pages := make(map[string]fakePage, n)
	for i := 0; i < n; i++ {
		var links []string
		for j := 0; j < n; j++ {
			links = append(links,
				fmt.Sprintf("/p%d", j),
				fmt.Sprintf("/p%d#section", j),
				fmt.Sprintf("HTTPS://EXAMPLE.COM/p%d", j),
			)
		}
		links = append(links, "/")
		pages[fmt.Sprintf("https://example.com/p%d", i)] = fakePage{body: htmlPage(fmt.Sprint(i), links...)}
	}
	pages["https://example.com/"] = fakePage{body: htmlPage("root", "/p0", "/p1", "/p2")}

	site := newFakeSite(pages)
	site.delay = time.Millisecond

	cfg := testConfig("https://example.com/", -1)
	cfg.Workers = 8
	sink, tracker, summary := runCrawl(t, cfg, site)

	urls := sink.URLs()
	assert.Len(t, urls, n+1)
	seen := make(map[string]bool)
	for _, u := range urls {
		assert.False(t, seen[u], "duplicate record for %s", u)
		seen[u] = true
		assert.Equal(t, 1, site.Hits(u), "fetched %s more than once", u)
	}

	assert.Equal(t, n+1, summary.Records)
	assert.Equal(t, n+1, tracker.GetSnapshot().PagesDiscovered)
}

func TestCrawlSkipsDisallowedPages(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":        {body: htmlPage("Home", "/private", "/public")},
		"https://example.com/private": {err: fetch.ErrDisallowed},
		"https://example.com/public":  {body: htmlPage("Public")},
	})

	sink, tracker, _ := runCrawl(t, testConfig("https://example.com/", 2), site)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/public"}, sink.URLs())
	assert.Equal(t, 1, tracker.GetSnapshot().PagesSkipped)
	assert.Zero(t, tracker.GetSnapshot().PagesFailed)
}

func TestCrawlFetchFailures(t *testing.T) {
	t.Parallel()

	brokenErr := &fetch.Error{URL: "https://example.com/broken", Temporary: true, Err: errors.New("connection refused")}
	pages := func() map[string]fakePage {
		return map[string]fakePage{
			"https://example.com/":       {body: htmlPage("Home", "/broken")},
			"https://example.com/broken": {err: brokenErr},
		}
	}

	t.Run("not recorded by default", func(t *testing.T) {
		sink, tracker, _ := runCrawl(t, testConfig("https://example.com/", 2), newFakeSite(pages()))

		assert.Equal(t, []string{"https://example.com/"}, sink.URLs())
		assert.Equal(t, 1, tracker.GetSnapshot().PagesFailed)
	})

	t.Run("recorded with failure sentinel", func(t *testing.T) {
		cfg := testConfig("https://example.com/", 2)
		cfg.RecordFailures = true
		sink, _, _ := runCrawl(t, cfg, newFakeSite(pages()))

		require.Len(t, sink.records, 2)
		assert.Equal(t, storage.PageRecord{
			URL:    "https://example.com/broken",
			Depth:  1,
			Title:  "",
			Status: storage.StatusFailed,
		}, sink.records[1])
		assert.Equal(t, storage.NoTitle, sink.records[1].TitleOrDefault())
	})
}

func TestCrawlRetriesTemporaryErrors(t *testing.T) {
	t.Parallel()

	flaky := &fetch.Error{URL: "https://example.com/flaky", Temporary: true, Err: errors.New("connection reset")}
	site := newFakeSite(map[string]fakePage{
		"https://example.com/":      {body: htmlPage("Home", "/flaky", "/hard")},
		"https://example.com/flaky": {body: htmlPage("Flaky"), err: flaky, failFirst: 1},
		"https://example.com/hard":  {err: &fetch.Error{URL: "https://example.com/hard", Err: errors.New("bad response")}},
	})

	cfg := testConfig("https://example.com/", 2)
	cfg.Retries = 2
	sink, tracker, _ := runCrawl(t, cfg, site)

	assert.ElementsMatch(t, []string{"https://example.com/", "https://example.com/flaky"}, sink.URLs())
	assert.Equal(t, 2, site.Hits("https://example.com/flaky"))
	assert.Equal(t, 1, site.Hits("https://example.com/hard"), "permanent errors are not retried")

	snap := tracker.GetSnapshot()
	assert.Equal(t, 1, snap.PagesRetried)
	assert.Equal(t, 1, snap.PagesFailed)
}

func TestCrawlRecordsErrorStatusWithoutExpanding(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":     {body: htmlPage("Home", "/gone")},
		"https://example.com/gone": {status: http.StatusNotFound, body: htmlPage("Gone", "/hidden")},
	})

	sink, _, _ := runCrawl(t, testConfig("https://example.com/", 3), site)

	require.Len(t, sink.records, 2)
	assert.Equal(t, storage.PageRecord{URL: "https://example.com/gone", Depth: 1, Title: "Gone", Status: 404}, sink.records[1])
	assert.Zero(t, site.Hits("https://example.com/hidden"))
}

func TestCrawlRedirects(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":      {body: htmlPage("Home", "/old", "/away", "/moved")},
		"https://example.com/old":   {redirect: "https://example.com/", body: htmlPage("Home")},
		"https://example.com/away":  {redirect: "https://other.com/", body: htmlPage("Other")},
		"https://example.com/moved": {redirect: "https://example.com/new#top", body: htmlPage("New", "/after")},
		"https://example.com/after": {body: htmlPage("After")},
	})

	sink, tracker, _ := runCrawl(t, testConfig("https://example.com/", 2), site)

	assert.Equal(t, []storage.PageRecord{
		{URL: "https://example.com/", Depth: 0, Title: "Home", Status: 200},
		{URL: "https://example.com/new", Depth: 1, Title: "New", Status: 200},
		{URL: "https://example.com/after", Depth: 2, Title: "After", Status: 200},
	}, sink.records)
	assert.Equal(t, 2, tracker.GetSnapshot().PagesSkipped)
}

func TestCrawlMaxHosts(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":      {body: htmlPage("Home", "https://a.example.com/x", "https://b.example.com/y", "/local")},
		"https://a.example.com/x":   {body: htmlPage("A")},
		"https://b.example.com/y":   {body: htmlPage("B")},
		"https://example.com/local": {body: htmlPage("Local")},
	})

	cfg := testConfig("https://example.com/", 1)
	cfg.MaxHosts = 2
	sink, _, _ := runCrawl(t, cfg, site)

	assert.Equal(t, []string{
		"https://example.com/",
		"https://a.example.com/x",
		"https://example.com/local",
	}, sink.URLs())
}

// Not parallel: installs a hook on the global logger.
func TestCrawlFrontierCapacityDropsAreLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":  {body: htmlPage("Home", "/a", "/b", "/c")},
		"https://example.com/a": {body: htmlPage("A")},
	})

	cfg := testConfig("https://example.com/", 2)
	cfg.FrontierCapacity = 1
	sink, tracker, _ := runCrawl(t, cfg, site)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/a"}, sink.URLs())
	assert.Equal(t, 2, tracker.GetSnapshot().TasksDropped)

	var dropped int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "dropping") {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)
}

func TestCrawlCancellation(t *testing.T) {
	t.Parallel()

	links := make([]string, 0, 200)
	pages := make(map[string]fakePage)
	for i := 0; i < 200; i++ {
		links = append(links, fmt.Sprintf("/p%d", i))
		pages[fmt.Sprintf("https://example.com/p%d", i)] = fakePage{body: htmlPage(fmt.Sprint(i))}
	}
	pages["https://example.com/"] = fakePage{body: htmlPage("Home", links...)}

	site := newFakeSite(pages)
	site.delay = 10 * time.Millisecond

	cfg := testConfig("https://example.com/", 1)
	cfg.Workers = 2
	sink := &recordingSink{}
	tracker := metrics.NewTracker()
	c, err := NewCrawler(cfg, Deps{Fetcher: site, Sink: sink, Metrics: tracker})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	summary, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ReasonCancelled, summary.Reason)
	assert.True(t, sink.closed)
	assert.Less(t, summary.Records, 201)
	assert.Positive(t, summary.Pending)
	assert.Equal(t, summary.Records+summary.Pending, 201)
	assert.Equal(t, summary.Pending, tracker.GetSnapshot().TasksPending)
}

func TestCrawlStopsDispatchingOnceCancelled(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) VisitedSet{
		"memory": func(*testing.T) VisitedSet {
			return NewMemoryVisitedSet()
		},
		"redis": func(t *testing.T) VisitedSet {
			mr := miniredis.RunT(t)
			set, err := storage.NewRedisVisitedSet(context.Background(), mr.Addr(), "cancel", time.Hour)
			require.NoError(t, err)
			t.Cleanup(func() { _ = set.Close() })
			return set
		},
	}

	for name, newSet := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			site := newFakeSite(map[string]fakePage{
				"https://example.com/": {body: htmlPage("Home", "/1", "/2", "/3", "/4", "/5")},
			})
			// The seed is still in flight when the crawl is cancelled
			site.onFetch = func(rawURL string) {
				if rawURL == "https://example.com/" {
					cancel()
				}
			}

			cfg := testConfig("https://example.com/", 2)
			cfg.Workers = 3
			sink := &recordingSink{}
			tracker := metrics.NewTracker()
			c, err := NewCrawler(cfg, Deps{Fetcher: site, Visited: newSet(t), Sink: sink, Metrics: tracker})
			require.NoError(t, err)

			summary, err := c.Run(ctx)
			require.NoError(t, err)

			assert.Equal(t, ReasonCancelled, summary.Reason)
			assert.Equal(t, []string{"https://example.com/"}, sink.URLs())
			assert.Equal(t, 5, summary.Pending)
			assert.Equal(t, 5, tracker.GetSnapshot().TasksPending)
			for i := 1; i <= 5; i++ {
				assert.Zero(t, site.Hits(fmt.Sprintf("https://example.com/%d", i)))
			}
		})
	}
}

// failingVisitedSet admits the seed and fails every later mark
type failingVisitedSet struct {
	marks atomic.Int32
}

func (s *failingVisitedSet) TryMark(context.Context, string) (bool, error) {
	if s.marks.Add(1) == 1 {
		return true, nil
	}
	return false, errors.New("connection refused")
}

func TestCrawlCountsUnmarkableLinksAsPending(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/": {body: htmlPage("Home", "/a", "/b")},
	})

	sink := &recordingSink{}
	c, err := NewCrawler(testConfig("https://example.com/", 2), Deps{Fetcher: site, Visited: &failingVisitedSet{}, Sink: sink})
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Records)
	assert.Equal(t, 2, summary.Pending)
	assert.Zero(t, site.Hits("https://example.com/a"))
}

func TestCrawlSkipsRejectedRedirects(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.com/":     {body: htmlPage("Home", "/away", "/sub", "/ok")},
		"https://example.com/away": {err: fmt.Errorf("redirect to https://other.com/: %w", fetch.ErrOutOfScope)},
		"https://example.com/sub":  {redirect: "https://new.example.com/", body: htmlPage("New")},
		"https://example.com/ok":   {body: htmlPage("OK")},
	})

	cfg := testConfig("https://example.com/", 1)
	cfg.MaxHosts = 1
	sink, tracker, _ := runCrawl(t, cfg, site)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/ok"}, sink.URLs())
	assert.Equal(t, 2, tracker.GetSnapshot().PagesSkipped)
	assert.Zero(t, tracker.GetSnapshot().PagesFailed)
}

func TestCrawlMaxRunTime(t *testing.T) {
	t.Parallel()

	pages := make(map[string]fakePage)
	links := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		links = append(links, fmt.Sprintf("/p%d", i))
		pages[fmt.Sprintf("https://example.com/p%d", i)] = fakePage{body: htmlPage(fmt.Sprint(i))}
	}
	pages["https://example.com/"] = fakePage{body: htmlPage("Home", links...)}

	site := newFakeSite(pages)
	site.delay = 50 * time.Millisecond

	cfg := testConfig("https://example.com/", 1)
	cfg.MaxRunTimeSeconds = 1
	sink := &recordingSink{}
	c, err := NewCrawler(cfg, Deps{Fetcher: site, Sink: sink})
	require.NoError(t, err)

	start := time.Now()
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxRunTime, summary.Reason)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Less(t, summary.Records, 101)
}

func TestCrawlSinkFailureStopsRun(t *testing.T) {
	t.Parallel()

	errDiskFull := errors.New("disk full")
	site := newFakeSite(map[string]fakePage{
		"https://example.com/": {body: htmlPage("Home", "/a")},
	})

	sink := &recordingSink{err: errDiskFull}
	c, err := NewCrawler(testConfig("https://example.com/", 2), Deps{Fetcher: site, Sink: sink})
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, ReasonSinkError, summary.Reason)
	assert.True(t, sink.closed)
}

func TestNewCrawlerValidation(t *testing.T) {
	t.Parallel()

	site := newFakeSite(nil)

	_, err := NewCrawler(testConfig("https://example.com/", 1), Deps{Sink: &recordingSink{}})
	assert.Error(t, err)

	_, err = NewCrawler(testConfig("https://example.com/", 1), Deps{Fetcher: site})
	assert.Error(t, err)

	_, err = NewCrawler(testConfig("no-host", 1), Deps{Fetcher: site, Sink: &recordingSink{}})
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "seed_url", cfgErr.Field)
}

func TestCrawlHTTPSiteToCSV(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /secret\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(htmlPage("Home", "/a", "/secret", "/a#dup", "mailto:x@example.com")))
		case "/a":
			_, _ = w.Write([]byte(htmlPage("  Page A  ", "/")))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL+"/", 2)
	cfg.Workers = 2

	fetcher, err := fetch.New(fetch.Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      2 * time.Second,
		MaxBodyBytes: 1 << 20,
		Parallelism:  cfg.Workers,
		Robots:       fetch.NewRobotsCache(srv.Client(), cfg.UserAgent),
	})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "urls.csv")
	sink, err := storage.NewCSVSink(out)
	require.NoError(t, err)

	c, err := NewCrawler(cfg, Deps{Fetcher: fetcher, Sink: sink})
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Records)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		storage.CSVHeader,
		{srv.URL + "/", "0", "Home", "200"},
		{srv.URL + "/a", "1", "Page A", "200"},
	}, rows)
}
