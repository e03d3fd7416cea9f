package watch

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/fetch"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/pkg/types"
)

const sourceTick = "tick"

type fetchResult struct {
	seq      uint64
	url      string
	body     []byte
	err      error
	duration time.Duration
}

// session is the loop-owned state. Nothing here is touched outside Run.
type session struct {
	c *Coordinator

	currentURL string

	// coalescing: at most one tick pending
	pending   bool
	tickTimer *time.Timer
	tickC     <-chan time.Time

	// retry window after navigation
	retryUntil  time.Time
	retryTicker *time.Ticker
	retryC      <-chan time.Time

	// de-duplication; domDetector == fetchDetector under the shared policy
	domDetector   *extract.ChangeDetector
	fetchDetector *extract.ChangeDetector
	lastPublished string
	hasPublished  bool

	// at most one fetch in flight; only the latest sequence is eligible
	fetchSeq    uint64
	fetchCancel context.CancelFunc

	ticks        int64
	accepted     int64
	navigations  int64
	lastAccepted time.Time
}

func newSession(c *Coordinator) *session {
	s := &session{c: c, domDetector: &extract.ChangeDetector{}}
	if c.cfg.Dedup == types.DedupSeparate {
		s.fetchDetector = &extract.ChangeDetector{}
	} else {
		s.fetchDetector = s.domDetector
	}
	return s
}

func (s *session) start(ctx context.Context) {
	u, err := s.readURL(ctx)
	if err != nil {
		s.c.logger.Warn("Failed to read initial URL", zap.Error(err))
	}
	s.currentURL = u

	s.c.logger.Info("Coordinator started",
		zap.String("url", u),
		zap.String("mode", modeOf(u).String()),
		zap.String("dedup", s.c.cfg.Dedup))

	s.requestTick()
}

func (s *session) stop() {
	if s.tickTimer != nil {
		s.tickTimer.Stop()
	}
	s.stopRetry()
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
}

// requestTick schedules one parse at the next coalesce boundary unless one is already pending
func (s *session) requestTick() {
	if s.pending {
		return
	}
	s.pending = true
	s.tickTimer = time.NewTimer(s.c.cfg.CoalesceDelay.ToDuration())
	s.tickC = s.tickTimer.C
}

// tick runs the resolver once. The pending flag is cleared whatever the outcome.
func (s *session) tick(ctx context.Context) {
	s.pending = false
	s.tickC = nil
	s.tickTimer = nil
	s.ticks++
	s.c.metrics.RecordParseTick()

	u, err := s.readURL(ctx)
	if err != nil {
		s.c.logger.Debug("Failed to read URL for tick, using last known", zap.Error(err))
		u = s.currentURL
	}
	mode := modeOf(u)

	readCtx, cancel := context.WithTimeout(ctx, s.c.callTimeout)
	defer cancel()

	candidate, ok := s.c.resolver.Find(readCtx, mode)
	if !ok {
		s.c.metrics.RecordFragment(sourceTick, metrics.OutcomeNoMatch)
		return
	}
	s.accept(ctx, candidate, u, mode, s.domDetector)
}

func (s *session) retry() {
	if time.Now().After(s.retryUntil) {
		s.stopRetry()
		return
	}
	s.requestTick()
}

func (s *session) startRetryWindow() {
	s.retryUntil = time.Now().Add(s.c.cfg.RetryWindow.ToDuration())
	if s.retryTicker != nil {
		return
	}
	s.retryTicker = time.NewTicker(s.c.cfg.RetryInterval.ToDuration())
	s.retryC = s.retryTicker.C
	s.c.metrics.SetRetryWindowActive(true)
}

func (s *session) stopRetry() {
	if s.retryTicker == nil {
		return
	}
	s.retryTicker.Stop()
	s.retryTicker = nil
	s.retryC = nil
	s.c.metrics.SetRetryWindowActive(false)
}

// checkNavigation compares the page URL with the last known one and, on a
// change, resets de-duplication, schedules a tick, opens the retry window and
// refetches the new URL.
func (s *session) checkNavigation(ctx context.Context, trigger string) {
	u, err := s.readURL(ctx)
	if err != nil {
		s.c.logger.Debug("Failed to read URL", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	if u == s.currentURL {
		return
	}

	from := s.currentURL
	s.currentURL = u
	s.navigations++

	s.domDetector.Reset()
	s.fetchDetector.Reset()
	s.hasPublished = false
	s.lastPublished = ""

	s.c.metrics.RecordNavigation(trigger)
	s.c.logger.Info("Navigation detected",
		zap.String("from", from),
		zap.String("url", u),
		zap.String("trigger", trigger))

	s.requestTick()
	s.startRetryWindow()
	s.startFetch(ctx, u)

	s.c.publisher.NavigationChanged(ctx, types.NavigationEvent{
		SessionID:  s.c.sessionID,
		From:       from,
		URL:        u,
		Mode:       modeOf(u).String(),
		DetectedAt: time.Now().UTC(),
		Trigger:    trigger,
	})
}

// startFetch cancels any fetch in flight and starts a new one for target. The
// previous attempt is invalidated even when target itself is not fetched.
func (s *session) startFetch(ctx context.Context, target string) {
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
	s.fetchSeq++
	seq := s.fetchSeq

	if !fetchable(target) {
		s.c.logger.Debug("Skipping refetch of non-HTTP address", zap.String("url", target))
		return
	}

	cookieCtx, cancel := context.WithTimeout(ctx, s.c.callTimeout)
	cookie, err := s.c.page.CookieHeader(cookieCtx, target)
	cancel()
	if err != nil {
		s.c.logger.Warn("Failed to read cookies, fetching without them", zap.Error(err))
	}

	req := fetch.Request{URL: target, Cookie: cookie, UserAgent: s.c.page.UserAgent()}
	fetchCtx, fetchCancel := context.WithTimeout(ctx, s.c.cfg.FetchTimeout.ToDuration())
	s.fetchCancel = fetchCancel

	go func() {
		start := time.Now()
		body, err := s.c.fetcher.Fetch(fetchCtx, req)
		res := fetchResult{seq: seq, url: target, body: body, err: err, duration: time.Since(start)}

		select {
		case s.c.fetchResults <- res:
		case <-ctx.Done():
		}
	}()
}

// handleFetch delivers a finished fetch. Results from superseded or canceled
// fetches are dropped without logging.
func (s *session) handleFetch(ctx context.Context, res fetchResult) {
	if res.seq != s.fetchSeq {
		s.c.metrics.RecordFetch(metrics.FetchSuperseded, res.duration)
		return
	}
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}

	if res.err != nil {
		switch {
		case errors.Is(res.err, context.Canceled):
			s.c.metrics.RecordFetch(metrics.FetchCanceled, res.duration)
		case errors.Is(res.err, fetch.ErrUnexpectedStatus):
			s.c.metrics.RecordFetch(metrics.FetchHTTPError, res.duration)
			s.c.logger.Info("failed to fetch page", zap.String("url", res.url), zap.Error(res.err))
		default:
			s.c.metrics.RecordFetch(metrics.FetchError, res.duration)
			s.c.logger.Warn("failed to fetch page", zap.String("url", res.url), zap.Error(res.err))
		}
		return
	}
	s.c.metrics.RecordFetch(metrics.FetchOK, res.duration)

	// Mode follows the page as it is now, which can differ from the fetched URL
	// if a navigation has not been detected yet.
	u, err := s.readURL(ctx)
	if err != nil {
		u = s.currentURL
	}
	mode := modeOf(u)

	candidate, ok := s.c.fetcher.Scan(res.body, mode)
	if !ok {
		s.c.metrics.RecordFragment(types.SourceFetch, metrics.OutcomeNoMatch)
		return
	}
	s.accept(ctx, candidate, res.url, mode, s.fetchDetector)
}

// accept gates candidate through detector and publishes it when new
func (s *session) accept(ctx context.Context, candidate extract.Candidate, pageURL string, mode types.PageMode, detector *extract.ChangeDetector) {
	if !detector.Accept(candidate.Fragment) || (s.hasPublished && s.lastPublished == candidate.Fragment) {
		s.c.metrics.RecordFragment(candidate.Source, metrics.OutcomeDuplicate)
		return
	}
	s.c.metrics.RecordFragment(candidate.Source, metrics.OutcomeAccepted)

	result := &extract.Result{
		SessionID:   s.c.sessionID,
		URL:         pageURL,
		Mode:        mode.String(),
		Source:      candidate.Source,
		Container:   candidate.Container,
		Fragment:    candidate.Fragment,
		Fingerprint: extract.Fingerprint(candidate.Fragment),
		AcceptedAt:  time.Now().UTC(),
	}

	payload, err := extract.Parse(candidate.Fragment, mode)
	if err != nil {
		result.ParseError = err.Error()
		s.c.metrics.RecordParseFailure(mode.String())
		s.c.logger.Warn("failed to parse payload",
			zap.String("source", candidate.Source),
			zap.String("fingerprint", result.Fingerprint),
			zap.Error(err))
	} else {
		result.Payload = payload
	}

	s.lastPublished = candidate.Fragment
	s.hasPublished = true
	s.accepted++
	s.lastAccepted = result.AcceptedAt

	s.c.logger.Info("matched payload",
		zap.String("source", candidate.Source),
		zap.String("container", candidate.Container),
		zap.String("mode", result.Mode),
		zap.String("url", pageURL),
		zap.String("fingerprint", result.Fingerprint),
		zap.Int("bytes", len(candidate.Fragment)))

	s.c.publisher.Publish(ctx, result)
}

func (s *session) readURL(ctx context.Context) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.c.callTimeout)
	defer cancel()
	return s.c.page.URL(readCtx)
}

func (s *session) snapshot() *Status {
	return &Status{
		SessionID:     s.c.sessionID,
		URL:           s.currentURL,
		Mode:          modeOf(s.currentURL).String(),
		TickPending:   s.pending,
		RetryActive:   s.retryTicker != nil,
		RetryUntil:    s.retryUntil,
		FetchInFlight: s.fetchCancel != nil,
		Ticks:         s.ticks,
		Accepted:      s.accepted,
		Navigations:   s.navigations,
		LastAccepted:  s.lastAccepted,
	}
}

// fetchable reports whether target is an http(s) address. about:blank and
// browser error pages are never refetched.
func fetchable(target string) bool {
	u, err := url.Parse(target)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// modeOf derives the page mode from a full URL
func modeOf(rawURL string) types.PageMode {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.PageModeFromPath(rawURL)
	}
	return types.PageModeFromPath(u.Path)
}
