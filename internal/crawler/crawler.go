package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/domain-crawler/internal/config"
	"github.com/alvmarrod/domain-crawler/internal/fetch"
	"github.com/alvmarrod/domain-crawler/internal/metrics"
	"github.com/alvmarrod/domain-crawler/internal/parse"
	"github.com/alvmarrod/domain-crawler/internal/storage"
)

// State is the lifecycle phase of a crawl
type State int32

const (
	StateInit State = iota
	StateRunning
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDrained:
		return "DRAINED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Termination reasons reported in the run summary
const (
	ReasonDrained    = "frontier_drained"
	ReasonCancelled  = "cancelled"
	ReasonMaxRunTime = "max_run_time"
	ReasonSinkError  = "sink_error"
	ReasonStartup    = "startup_failed"
)

// Fetcher retrieves one URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// PageParser extracts the title and raw hrefs of a fetched page
type PageParser interface {
	Parse(finalURL string, body []byte) (parse.Page, error)
}

// Deps are the collaborators of a Crawler. Fetcher and Sink are required;
// the rest fall back to in-process defaults.
type Deps struct {
	Fetcher Fetcher
	Parser  PageParser
	Visited VisitedSet
	Sink    storage.Sink
	Metrics *metrics.Tracker
}

// Summary describes how a run ended
type Summary struct {
	BaseDomain string
	Records    int
	Pending    int
	Reason     string
}

// Crawler drives a breadth-first crawl of one base domain
type Crawler struct {
	cfg        *config.Config
	baseDomain string
	fetcher    Fetcher
	parser     PageParser
	visited    VisitedSet
	sink       storage.Sink
	metrics    *metrics.Tracker
	frontier   *Frontier
	hosts      *HostLimiter
	state      atomic.Int32
	records    atomic.Int64
	abandoned  atomic.Int64
}

// NewCrawler creates a new crawler instance for a validated config
func NewCrawler(cfg *config.Config, deps Deps) (*Crawler, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("crawler requires a fetcher")
	}
	if deps.Sink == nil {
		return nil, errors.New("crawler requires a sink")
	}

	baseDomain, err := BaseDomain(cfg.SeedURL, cfg.ScopeMode)
	if err != nil {
		return nil, &config.Error{Field: "seed_url", Err: err}
	}

	c := &Crawler{
		cfg:        cfg,
		baseDomain: baseDomain,
		fetcher:    deps.Fetcher,
		parser:     deps.Parser,
		visited:    deps.Visited,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		frontier:   NewFrontier(cfg.FrontierCapacity),
		hosts:      NewHostLimiter(cfg.MaxHosts),
	}
	if c.parser == nil {
		c.parser = parse.NewParser()
	}
	if c.visited == nil {
		c.visited = NewMemoryVisitedSet()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewTracker()
	}

	return c, nil
}

// State returns the current lifecycle phase
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Run crawls until the frontier drains or ctx ends, then closes the sink.
// The returned error is non-nil only for startup or sink failures.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	runCtx := ctx
	if d := c.cfg.MaxRunTime(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := c.enqueueSeed(runCtx); err != nil {
		c.state.Store(int32(StateDrained))
		closeErr := c.sink.Close()
		return Summary{BaseDomain: c.baseDomain, Reason: ReasonStartup}, errors.Join(err, closeErr)
	}

	c.state.Store(int32(StateRunning))
	logrus.Infof("Crawling %s (base domain %s, max depth %d, %d workers)",
		c.cfg.SeedURL, c.baseDomain, c.cfg.MaxDepth, c.cfg.Workers)

	// Stop dispatching as soon as the run context ends
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			logrus.Warnf("Stop requested (%v), finishing in-flight fetches", context.Cause(runCtx))
			c.frontier.Stop()
		case <-watchDone:
		}
	}()

	var g errgroup.Group
	for i := 0; i < c.cfg.Workers; i++ {
		id := i + 1
		g.Go(func() error {
			return c.worker(runCtx, id)
		})
	}
	runErr := g.Wait()
	close(watchDone)

	c.state.Store(int32(StateDrained))

	pending := c.frontier.Len() + int(c.abandoned.Load())
	c.metrics.SetTasksPending(pending)
	if pending > 0 {
		logrus.Warnf("Crawl stopped with %d tasks never fetched", pending)
		for _, task := range c.frontier.Pending() {
			logrus.Debugf("Pending: %s (depth=%d)", task.URL, task.Depth)
		}
	}

	reason := ReasonDrained
	switch {
	case runErr != nil:
		reason = ReasonSinkError
	case ctx.Err() != nil:
		reason = ReasonCancelled
	case runCtx.Err() != nil:
		reason = ReasonMaxRunTime
	}

	if err := c.sink.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close sink: %w", err))
	}

	summary := Summary{
		BaseDomain: c.baseDomain,
		Records:    int(c.records.Load()),
		Pending:    pending,
		Reason:     reason,
	}
	logrus.Infof("Crawl finished: %d records, %d pending, reason=%s", summary.Records, summary.Pending, summary.Reason)
	return summary, runErr
}

// enqueueSeed marks the normalized seed visited and queues it at depth 0
func (c *Crawler) enqueueSeed(ctx context.Context) error {
	seed, err := NormalizeURL(c.cfg.SeedURL)
	if err != nil {
		return &config.Error{Field: "seed_url", Err: err}
	}

	fresh, err := c.visited.TryMark(ctx, seed)
	if err != nil {
		return fmt.Errorf("mark seed %s: %w", seed, err)
	}
	if !fresh {
		logrus.Warnf("Seed %s already visited in this run, nothing to do", seed)
		return nil
	}

	if host, err := ExtractHost(seed); err == nil {
		c.hosts.Admit(host)
	}
	c.frontier.Push(storage.CrawlTask{URL: seed, Depth: 0})
	c.metrics.IncrementPagesDiscovered()
	return nil
}

// worker processes frontier tasks until the frontier drains or stops
func (c *Crawler) worker(ctx context.Context, id int) error {
	logrus.Debugf("Worker %d started", id)

	for {
		task, ok := c.frontier.Pop()
		if !ok {
			logrus.Debugf("Worker %d: frontier closed, exiting", id)
			return nil
		}

		// The watcher may not have stopped the frontier yet
		if ctx.Err() != nil {
			c.abandoned.Add(1)
			c.frontier.Done()
			c.frontier.Stop()
			continue
		}

		logrus.Debugf("Worker %d: popped %s (depth=%d, attempt=%d)", id, task.URL, task.Depth, task.Attempt)

		err := c.process(ctx, id, task)
		c.frontier.Done()
		if err != nil {
			logrus.Errorf("Worker %d: %v", id, err)
			c.frontier.Stop()
			return err
		}
	}
}

// process fetches one task and handles its outcome. Only sink failures
// are returned; everything else is absorbed per page.
func (c *Crawler) process(ctx context.Context, id int, task storage.CrawlTask) error {
	res, err := c.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return c.handleFetchError(ctx, id, task, err)
	}
	c.metrics.RecordFetchTime(res.Duration)

	finalURL, err := NormalizeURL(res.FinalURL)
	if err != nil {
		finalURL = task.URL
	}

	// A redirect may land outside the domain or on a page already seen
	if finalURL != task.URL {
		if !InScope(finalURL, c.baseDomain) {
			logrus.Infof("Worker %d: %s redirected out of scope to %s, skipping", id, task.URL, finalURL)
			c.metrics.IncrementPagesSkipped()
			return nil
		}

		fresh, err := c.tryMark(ctx, finalURL)
		if err != nil {
			logrus.Warnf("Worker %d: failed to mark %s visited: %v", id, finalURL, err)
			fresh = true
		}
		if !fresh {
			logrus.Debugf("Worker %d: %s redirected to already visited %s, skipping", id, task.URL, finalURL)
			c.metrics.IncrementPagesSkipped()
			return nil
		}
		if !c.admitHost(finalURL) {
			logrus.Infof("Worker %d: %s redirected past the host limit to %s, skipping", id, task.URL, finalURL)
			c.metrics.IncrementPagesSkipped()
			return nil
		}
	}

	page := c.parsePage(id, finalURL, res)
	c.metrics.IncrementPagesFetched()

	if err := c.emit(storage.PageRecord{
		URL:    finalURL,
		Depth:  task.Depth,
		Title:  page.Title,
		Status: res.StatusCode,
	}); err != nil {
		return err
	}

	logrus.Infof("Worker %d fetched %s (depth=%d, status=%d)", id, finalURL, task.Depth, res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode >= 400 {
		return nil
	}

	// Pages at the depth cap are recorded but not expanded
	if !c.cfg.Unbounded() && task.Depth >= c.cfg.MaxDepth {
		return nil
	}

	c.expand(ctx, id, finalURL, task.Depth, page.Links)
	return nil
}

// parsePage runs the parser over HTML bodies, degrading to an empty page
func (c *Crawler) parsePage(id int, finalURL string, res *fetch.Result) parse.Page {
	if res.ContentType != "" && !strings.Contains(strings.ToLower(res.ContentType), "html") {
		return parse.Page{}
	}

	page, err := c.parser.Parse(finalURL, res.Body)
	if err != nil {
		logrus.Warnf("Worker %d: %v", id, err)
		return parse.Page{}
	}
	return page
}

// expand queues every in-scope, unseen link of a page at depth+1
func (c *Crawler) expand(ctx context.Context, id int, pageURL string, depth int, links []string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		logrus.Warnf("Worker %d: cannot resolve links of %s: %v", id, pageURL, err)
		return
	}

	added := 0
	for _, href := range links {
		abs, ok := ResolveLink(base, href)
		if !ok {
			continue
		}

		if !InScope(abs, c.baseDomain) {
			continue
		}

		fresh, err := c.tryMark(ctx, abs)
		if err != nil {
			logrus.Warnf("Worker %d: failed to mark %s visited, not queued: %v", id, abs, err)
			c.abandoned.Add(1)
			continue
		}
		if !fresh {
			continue
		}

		// Only first sightings take a host slot. A refused host stays
		// refused, so leaving its URL marked loses nothing.
		if !c.admitHost(abs) {
			logrus.Debugf("Worker %d: host limit reached, skipping %s", id, abs)
			continue
		}

		c.metrics.IncrementPagesDiscovered()

		next := storage.CrawlTask{URL: abs, Depth: depth + 1}
		if !c.frontier.Push(next) {
			if c.frontier.Stopped() {
				c.abandoned.Add(1)
				continue
			}
			c.metrics.IncrementTasksDropped()
			logrus.Warnf("Worker %d: frontier full, dropping %s (depth=%d)", id, abs, next.Depth)
			continue
		}
		added++
	}

	logrus.Debugf("Worker %d: %s yielded %d new links", id, pageURL, added)
}

// admitHost reports whether the host of u fits under the host cap
func (c *Crawler) admitHost(u string) bool {
	host, err := ExtractHost(u)
	return err == nil && c.hosts.Admit(host)
}

// tryMark claims u in the visited set. The mark outlives the run context so
// links found by a fetch that was in flight at stop are still counted.
func (c *Crawler) tryMark(ctx context.Context, u string) (bool, error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout())
	defer cancel()
	return c.visited.TryMark(markCtx, u)
}

// handleFetchError classifies a failed fetch: skip, retry, or failure
func (c *Crawler) handleFetchError(ctx context.Context, id int, task storage.CrawlTask, err error) error {
	if errors.Is(err, fetch.ErrDisallowed) {
		logrus.Infof("Worker %d: %s disallowed by robots.txt, skipping", id, task.URL)
		c.metrics.IncrementPagesSkipped()
		return nil
	}
	if errors.Is(err, fetch.ErrOutOfScope) {
		logrus.Infof("Worker %d: %s redirected out of scope, skipping", id, task.URL)
		c.metrics.IncrementPagesSkipped()
		return nil
	}

	// The stop signal interrupted the politeness or robots wait
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || c.frontier.Stopped()) {
		logrus.Debugf("Worker %d: crawl stopping, %s not fetched", id, task.URL)
		c.abandoned.Add(1)
		return nil
	}

	if fetch.IsTemporary(err) && task.Attempt < c.cfg.Retries {
		retry := task
		retry.Attempt++
		if c.frontier.Push(retry) {
			c.metrics.IncrementPagesRetried()
			logrus.Warnf("Worker %d: %v, retrying (attempt %d/%d)", id, err, retry.Attempt, c.cfg.Retries)
			return nil
		}
		if c.frontier.Stopped() {
			c.abandoned.Add(1)
			return nil
		}
	}

	c.metrics.IncrementPagesFailed()
	logrus.Warnf("Worker %d: %v", id, err)

	if !c.cfg.RecordFailures {
		return nil
	}

	status := storage.StatusFailed
	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 {
		status = fetchErr.StatusCode
	}
	return c.emit(storage.PageRecord{URL: task.URL, Depth: task.Depth, Status: status})
}

// emit appends one record to the sink
func (c *Crawler) emit(rec storage.PageRecord) error {
	if err := c.sink.Record(rec); err != nil {
		return fmt.Errorf("record %s: %w", rec.URL, err)
	}
	c.records.Add(1)
	c.metrics.IncrementRecordsWritten()
	return nil
}
