// Package watch schedules extraction for one watched page. A single loop
// goroutine owns every piece of session state: the pending tick, the retry
// window, the change detectors and the in-flight fetch. Other goroutines only
// send signals.
package watch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/fetch"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Page is the watched document as seen by the coordinator
type Page interface {
	extract.StateReader
	URL(ctx context.Context) (string, error)
	CookieHeader(ctx context.Context, url string) (string, error)
	UserAgent() string
}

// Fetcher downloads a URL and scans a downloaded body
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) ([]byte, error)
	Scan(body []byte, mode types.PageMode) (extract.Candidate, bool)
}

// Publisher receives accepted results and navigations
type Publisher interface {
	Publish(ctx context.Context, result *extract.Result)
	NavigationChanged(ctx context.Context, event types.NavigationEvent)
}

// Coordinator turns page signals into coalesced extraction ticks
type Coordinator struct {
	cfg         configtypes.WatchConfig
	callTimeout time.Duration
	sessionID   string

	page      Page
	resolver  *extract.Resolver
	fetcher   Fetcher
	publisher Publisher
	metrics   *metrics.MetricsCollector
	logger    *zap.Logger

	mutations    chan struct{}
	navigations  chan string
	refresh      chan struct{}
	refetch      chan struct{}
	fetchResults chan fetchResult

	running atomic.Bool
	status  atomic.Pointer[Status]
}

// NewCoordinator wires a coordinator for page. callTimeout bounds each page read.
func NewCoordinator(
	cfg configtypes.WatchConfig,
	callTimeout time.Duration,
	page Page,
	fetcher Fetcher,
	publisher Publisher,
	metricsCollector *metrics.MetricsCollector,
	logger *zap.Logger,
) *Coordinator {
	sessionID := uuid.NewString()
	logger = logger.With(zap.String("session_id", sessionID))

	c := &Coordinator{
		cfg:          cfg,
		callTimeout:  callTimeout,
		sessionID:    sessionID,
		page:         page,
		resolver:     extract.NewResolver(page, cfg.StateContainers, logger),
		fetcher:      fetcher,
		publisher:    publisher,
		metrics:      metricsCollector,
		logger:       logger,
		mutations:    make(chan struct{}, 1),
		navigations:  make(chan string, 8),
		refresh:      make(chan struct{}, 1),
		refetch:      make(chan struct{}, 1),
		fetchResults: make(chan fetchResult, 4),
	}
	c.status.Store(&Status{SessionID: sessionID})
	return c
}

// SessionID identifies this coordinator in logs, results and events
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// NotifyMutation reports that the document changed. Never blocks; bursts collapse.
func (c *Coordinator) NotifyMutation() {
	select {
	case c.mutations <- struct{}{}:
	default:
	}
}

// NotifyNavigation reports a possible URL change. Never blocks; when the queue
// is full the signal is dropped and the navigation poll picks the change up.
func (c *Coordinator) NotifyNavigation(trigger string) {
	select {
	case c.navigations <- trigger:
	default:
	}
}

// RequestRefresh asks for one parse tick, coalesced like any other request
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// RequestRefetch asks for a network refetch of the current URL
func (c *Coordinator) RequestRefetch() {
	select {
	case c.refetch <- struct{}{}:
	default:
	}
}

// Status returns the latest loop snapshot
func (c *Coordinator) Status() Status {
	return *c.status.Load()
}

// Run drives the session until ctx is canceled. It may only be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s := newSession(c)
	defer s.stop()

	s.start(ctx)

	poll := time.NewTicker(c.cfg.NavigationPoll.ToDuration())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Coordinator stopping", zap.String("url", s.currentURL))
			return nil

		case <-c.mutations:
			s.requestTick()

		case <-c.refresh:
			s.requestTick()

		case trigger := <-c.navigations:
			s.checkNavigation(ctx, trigger)

		case <-poll.C:
			s.checkNavigation(ctx, types.TriggerPoll)

		case <-s.tickC:
			s.tick(ctx)

		case <-s.retryC:
			s.retry()

		case <-c.refetch:
			s.startFetch(ctx, s.currentURL)

		case res := <-c.fetchResults:
			s.handleFetch(ctx, res)
		}

		c.status.Store(s.snapshot())
	}
}
