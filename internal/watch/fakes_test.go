package watch

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/fetch"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/pkg/types"
)

const (
	profileURL = "https://www.tiktok.com/@someone"
	videoURL   = "https://www.tiktok.com/@someone/video/7300000000000000001"
	video2URL  = "https://www.tiktok.com/@someone/video/7300000000000000002"

	profileFragment = `{"userInfo":{"user":{"id":"123"},"stats":{"followerCount":10,"followingCount":5,"heartCount":100,"videoCount":3}}}`
	profile2        = `{"userInfo":{"user":{"id":"123"},"stats":{"followerCount":11,"followingCount":5,"heartCount":100,"videoCount":3}}}`
	videoFragment   = `"webapp.video-detail":{"itemInfo":{"itemStruct":{"id":"v1","author":{"id":"a1","uniqueId":"u1"},` +
		`"stats":{"playCount":9,"diggCount":2,"commentCount":1,"shareCount":0}}}}`
	video2Fragment = `"webapp.video-detail":{"itemInfo":{"itemStruct":{"id":"v2","author":{"id":"a1","uniqueId":"u1"},` +
		`"stats":{"playCount":1,"diggCount":1,"commentCount":1,"shareCount":1}}}}`
)

// page wraps a fragment the way the site embeds it
func page(fragment string) string {
	return `<head><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__">{"__DEFAULT_SCOPE__":{"webapp.app-context":{},` +
		wrap(fragment) + `,"webapp.biz-context":{}}}</script></head><body><div id="app"></div></body>`
}

func wrap(fragment string) string {
	if len(fragment) > 0 && fragment[0] == '{' {
		return `"webapp.user-detail":` + fragment
	}
	return fragment
}

type fakePage struct {
	mu      sync.Mutex
	url     string
	html    string
	state   map[string]string
	cookies string
	urlErr  error
}

func newFakePage(url, html string) *fakePage {
	return &fakePage{url: url, html: html, state: map[string]string{}, cookies: "sid=1"}
}

func (p *fakePage) set(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.html = html
}

func (p *fakePage) setHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

func (p *fakePage) setURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.urlErr
}

func (p *fakePage) DocumentHTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) GlobalState(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[name], nil
}

func (p *fakePage) CookieHeader(context.Context, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookies, nil
}

func (p *fakePage) UserAgent() string {
	return "detailwatch-test"
}

// fakeFetcher serves bodies per URL. A URL listed in block waits for ctx; a
// URL listed in delay answers late unless ctx ends first.
type fakeFetcher struct {
	scanner *fetch.Fetcher

	mu       sync.Mutex
	bodies   map[string]string
	errs     map[string]error
	block    map[string]bool
	delay    map[string]time.Duration
	requests []fetch.Request
	canceled []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		scanner: fetch.NewFetcher(time.Second, 0, nil, zap.NewNop()),
		bodies:  map[string]string{},
		errs:    map[string]error{},
		block:   map[string]bool{},
		delay:   map[string]time.Duration{},
	}
}

func (f *fakeFetcher) serve(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	blocked, delay := f.block[req.URL], f.delay[req.URL]
	body, err := f.bodies[req.URL], f.errs[req.URL]
	f.mu.Unlock()

	var late <-chan time.Time
	if delay > 0 {
		late = time.After(delay)
	}
	if blocked || delay > 0 {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.canceled = append(f.canceled, req.URL)
			f.mu.Unlock()
			return nil, ctx.Err()
		case <-late:
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (f *fakeFetcher) canceledCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

func (f *fakeFetcher) Scan(body []byte, mode types.PageMode) (extract.Candidate, bool) {
	return f.scanner.Scan(body, mode)
}

func (f *fakeFetcher) requestsCopy() []fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetch.Request(nil), f.requests...)
}

type recordingPublisher struct {
	mu          sync.Mutex
	results     []extract.Result
	navigations []types.NavigationEvent
}

func (r *recordingPublisher) Publish(_ context.Context, result *extract.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, *result)
}

func (r *recordingPublisher) NavigationChanged(_ context.Context, event types.NavigationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigations = append(r.navigations, event)
}

func (r *recordingPublisher) Results() []extract.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]extract.Result(nil), r.results...)
}

func (r *recordingPublisher) Fragments() []string {
	var out []string
	for _, res := range r.Results() {
		out = append(out, res.Fragment)
	}
	return out
}

func (r *recordingPublisher) Navigations() []types.NavigationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.NavigationEvent(nil), r.navigations...)
}

func testWatchConfig() configtypes.WatchConfig {
	return configtypes.WatchConfig{
		CoalesceDelay:   types.Duration(5 * time.Millisecond),
		RetryInterval:   types.Duration(20 * time.Millisecond),
		RetryWindow:     types.Duration(300 * time.Millisecond),
		NavigationPoll:  types.Duration(40 * time.Millisecond),
		FetchTimeout:    types.Duration(2 * time.Second),
		Dedup:           types.DedupShared,
		StateContainers: types.DefaultStateContainers,
	}
}

type harness struct {
	page      *fakePage
	fetcher   *fakeFetcher
	publisher *recordingPublisher
	coord     *Coordinator
	logs      *observer.ObservedLogs
	registry  *prometheus.Registry
	cancel    context.CancelFunc
	done      chan error
}

func startHarness(cfg configtypes.WatchConfig, p *fakePage, f *fakeFetcher) *harness {
	h := &harness{
		page:      p,
		fetcher:   f,
		publisher: &recordingPublisher{},
		done:      make(chan error, 1),
	}
	core, logs := observer.New(zap.DebugLevel)
	h.logs = logs
	h.registry = prometheus.NewRegistry()
	mc := metrics.NewMetricsCollectorWithRegistry("test", h.registry, zap.NewNop())
	h.coord = NewCoordinator(cfg, time.Second, p, f, h.publisher, mc, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.coord.Run(ctx) }()
	return h
}

// fetchCount reads the fetches_total counter for status
func (h *harness) fetchCount(status string) float64 {
	families, err := h.registry.Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != "test_watcher_fetches_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (h *harness) stop() error {
	h.cancel()
	return <-h.done
}
