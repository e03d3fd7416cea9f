package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/pkg/types"
)

const (
	profileFragment = `{"userInfo":{"user":{"id":"123"},"stats":{"followerCount":10,"followingCount":5,"heartCount":100,"videoCount":3}}}`
	profilePage     = `<html><head><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__">{"__DEFAULT_SCOPE__":{"webapp.user-detail":` +
		profileFragment + `,"webapp.a":{}}}</script></head><body></body></html>`

	prettyProfilePage = `<html><head>
<script id="SIGI_STATE" type="application/json">
{
  "UserModule": {
    "userInfo": {
      "user": {"id": "123"},
      "stats": {"followerCount": 10, "followingCount": 5, "heartCount": 100, "videoCount": 3}
    }
  },
  "webapp.after": {}
}
</script>
</head></html>`
)

func newTestFetcher(maxBytes int64) *Fetcher {
	return NewFetcher(5*time.Second, maxBytes, nil, zap.NewNop())
}

func TestFetch_SendsNoCacheHeadersAndIdentity(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(0).Fetch(context.Background(), Request{
		URL:       srv.URL,
		Cookie:    "sid=abc; tt=1",
		UserAgent: "Mozilla/5.0 test",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, "no-cache", got.Get("Pragma"))
	assert.Equal(t, "sid=abc; tt=1", got.Get("Cookie"))
	assert.Equal(t, "Mozilla/5.0 test", got.Get("User-Agent"))
	assert.Equal(t, "gzip, zstd", got.Get("Accept-Encoding"))
}

func TestFetch_OmitsEmptyCookie(t *testing.T) {
	var hasCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasCookie = r.Header["Cookie"]
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.False(t, hasCookie)
}

func TestFetch_DecodesContentEncoding(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(profilePage))
	require.NoError(t, gw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := enc.EncodeAll([]byte(profilePage), nil)
	require.NoError(t, enc.Close())

	tests := []struct {
		name     string
		encoding string
		payload  []byte
	}{
		{"identity", "", []byte(profilePage)},
		{"gzip", "gzip", gz.Bytes()},
		{"zstd", "zstd", zs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				_, _ = w.Write(tt.payload)
			}))
			defer srv.Close()

			body, err := newTestFetcher(0).Fetch(context.Background(), Request{URL: srv.URL})
			require.NoError(t, err)
			assert.Equal(t, profilePage, string(body))
		})
	}
}

func TestFetch_UnsupportedEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write([]byte("xx"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content encoding")
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "403")
}

func TestFetch_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024).Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	body, err := newTestFetcher(2048).Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, body, 2048)
}

func TestFetch_Canceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestFetcher(0).Fetch(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScan(t *testing.T) {
	tests := []struct {
		name          string
		page          string
		mode          types.PageMode
		wantOK        bool
		wantContainer string
	}{
		{"raw body match", profilePage, types.PageModeProfile, true, ""},
		{"compacted script match", prettyProfilePage, types.PageModeProfile, true, "SIGI_STATE"},
		{"wrong mode", profilePage, types.PageModeVideoOrPhoto, false, ""},
		{"no state at all", "<html><body>hello</body></html>", types.PageModeProfile, false, ""},
		{"empty body", "", types.PageModeProfile, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, ok := newTestFetcher(0).Scan([]byte(tt.page), tt.mode)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, profileFragment, candidate.Fragment)
			assert.Equal(t, types.SourceFetch, candidate.Source)
			assert.Equal(t, tt.wantContainer, candidate.Container)
		})
	}
}

func TestFetchThenScan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(prettyProfilePage))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	body, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	candidate, ok := f.Scan(body, types.PageModeProfile)
	require.True(t, ok)
	assert.Equal(t, profileFragment, candidate.Fragment)
}
