package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

const profileFragment = `{"userInfo":{"user":{"id":"123"},"stats":{"followerCount":10,"followingCount":5,"heartCount":100,"videoCount":3}}}`

func n(s string) *json.Number {
	v := json.Number(s)
	return &v
}

func parsedResult() *extract.Result {
	return &extract.Result{
		SessionID:   "s-1",
		URL:         "https://www.tiktok.com/@someone",
		Mode:        "profile",
		Source:      types.SourceDocument,
		Fragment:    profileFragment,
		Fingerprint: extract.Fingerprint(profileFragment),
		Payload: &extract.Payload{Type: "profile", Profile: &extract.ProfilePayload{
			TikTokID: "123", Followers: n("10"), Following: n("5"), Likes: n("100"), Videos: n("3"),
		}},
		AcceptedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func navigationEvent() types.NavigationEvent {
	return types.NavigationEvent{
		SessionID:  "s-1",
		From:       "https://www.tiktok.com/@someone",
		URL:        "https://www.tiktok.com/@someone/video/1",
		Mode:       "video",
		DetectedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		Trigger:    types.TriggerHistory,
	}
}

type fakeRunner struct {
	scripts []string
	err     error
}

func (f *fakeRunner) Exec(_ context.Context, script string) error {
	f.scripts = append(f.scripts, script)
	return f.err
}

type fakeSink struct {
	name        string
	err         error
	published   []*extract.Result
	navigations []types.NavigationEvent
	closed      bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, r *extract.Result) error {
	f.published = append(f.published, r)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.err
}

// navFakeSink also implements NavigationSink
type navFakeSink struct {
	fakeSink
}

func (f *navFakeSink) NavigationChanged(_ context.Context, e types.NavigationEvent) error {
	f.navigations = append(f.navigations, e)
	return f.err
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordSinkError(sink string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[sink]++
}

var errBoom = errors.New("boom")
