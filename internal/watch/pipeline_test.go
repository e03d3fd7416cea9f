package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/common/redis"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/fetch"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/internal/sink"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// origin is a stand-in for the site: it serves a page per path and records
// the cookies each request carried.
type origin struct {
	mu      sync.Mutex
	pages   map[string]string
	status  map[string]int
	cookies []string
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.cookies = append(o.cookies, r.Header.Get("Cookie"))
	body, status := o.pages[r.URL.Path], o.status[r.URL.Path]
	o.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(body))
}

func (o *origin) seenCookies() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.cookies...)
}

var _ = Describe("Detail watch pipeline", func() {
	var (
		mr      *miniredis.Miniredis
		client  *redis.Client
		site    *origin
		srv     *httptest.Server
		p       *fakePage
		latest  *sink.LatestStore
		coord   *Coordinator
		cancel  context.CancelFunc
		done    chan error
		profile string
		video   string
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		redisCfg := configtypes.RedisConfig{Enabled: true, Addr: mr.Addr(), KeyPrefix: "dw:", TTL: types.Duration(time.Hour), Compression: types.CompressionSnappy}
		client, err = redis.NewClient(&redisCfg, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())

		site = &origin{pages: map[string]string{}, status: map[string]int{}}
		srv = httptest.NewServer(site)
		profile = srv.URL + "/@someone"
		video = srv.URL + "/@someone/video/7300000000000000001"

		p = newFakePage(profile, page(profileFragment))
		latest = sink.NewLatestStore()

		mc := metrics.NewMetricsCollectorWithRegistry("acceptance", prometheus.NewRegistry(), zap.NewNop())
		router := sink.NewRouter([]sink.Sink{latest, sink.NewRedisSink(client, redisCfg, zap.NewNop())}, time.Second, mc, zap.NewNop())

		cfg := testWatchConfig()
		fetcher := fetch.NewFetcher(cfg.FetchTimeout.ToDuration(), 1<<20, cfg.StateContainers, zap.NewNop())
		coord = NewCoordinator(cfg, time.Second, p, fetcher, router, mc, zap.NewNop())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- coord.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
		srv.Close()
		_ = client.Close()
		mr.Close()
	})

	storedLatest := func() string {
		data, err := client.Get(context.Background(), client.Keys().Latest())
		if err != nil || data == nil {
			return ""
		}
		data, err = sink.Decompress(data, types.CompressionSnappy)
		if err != nil {
			return ""
		}
		var res extract.Result
		if err := json.Unmarshal(data, &res); err != nil {
			return ""
		}
		return res.Fragment
	}

	latestFragment := func() string {
		res, ok := latest.Latest()
		if !ok {
			return ""
		}
		return res.Fragment
	}

	It("publishes the page's initial record to every sink", func() {
		Eventually(latestFragment).Should(Equal(profileFragment))
		Eventually(storedLatest).Should(Equal(profileFragment))

		res, _ := latest.Latest()
		Expect(res.Source).To(Equal(types.SourceDocument))
		Expect(res.Payload.Profile.Followers.String()).To(Equal("10"))
		Expect(mr.TTL("dw:latest")).To(Equal(time.Hour))
	})

	It("follows a client-side navigation with a credentialed refetch", func() {
		Eventually(latestFragment).Should(Equal(profileFragment))

		subscriber := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		defer subscriber.Close()
		ps := subscriber.Subscribe(context.Background(), client.Keys().Navigation())
		defer ps.Close()
		_, err := ps.Receive(context.Background())
		Expect(err).ToNot(HaveOccurred())

		site.mu.Lock()
		site.pages["/@someone/video/7300000000000000001"] = "<html><head>" +
			`<script id="SIGI_STATE" type="application/json">` + "\n" +
			`{"ItemModule": {}, ` + videoFragment + `, "webapp.biz": {}}` + "\n</script></head></html>"
		site.mu.Unlock()

		// the rendered document never carries the record
		p.set(video, "<html><body></body></html>")
		coord.NotifyNavigation(types.TriggerHistory)

		var msg *goredis.Message
		Eventually(ps.Channel()).Should(Receive(&msg))
		var ev types.NavigationEvent
		Expect(json.Unmarshal([]byte(msg.Payload), &ev)).To(Succeed())
		Expect(ev.From).To(Equal(profile))
		Expect(ev.URL).To(Equal(video))
		Expect(ev.Mode).To(Equal("video"))

		Eventually(latestFragment).Should(Equal(videoFragment))
		Eventually(storedLatest).Should(Equal(videoFragment))

		res, _ := latest.Latest()
		Expect(res.Source).To(Equal(types.SourceFetch))
		Expect(res.Container).To(Equal("SIGI_STATE"))
		Expect(res.Mode).To(Equal("video"))
		Expect(res.Payload.Video.VideoID).To(Equal("v1"))

		nav, ok := latest.LastNavigation()
		Expect(ok).To(BeTrue())
		Expect(nav.URL).To(Equal(video))
		Expect(site.seenCookies()).To(ConsistOf("sid=1"))
	})

	It("keeps the last result when the refetch is rejected", func() {
		Eventually(latestFragment).Should(Equal(profileFragment))

		site.mu.Lock()
		site.status["/@someone/video/7300000000000000001"] = http.StatusForbidden
		site.mu.Unlock()

		p.set(video, "<html><body></body></html>")
		coord.NotifyNavigation(types.TriggerHistory)

		Eventually(site.seenCookies).Should(HaveLen(1))
		Eventually(func() bool { return coord.Status().FetchInFlight }).Should(BeFalse())
		Consistently(latestFragment, 100*time.Millisecond).Should(Equal(profileFragment))

		By("picking the record up from the page once it renders")
		p.setHTML(page(videoFragment))
		coord.NotifyMutation()
		Eventually(latestFragment).Should(Equal(videoFragment))
		Eventually(storedLatest).Should(Equal(videoFragment))
	})
})
