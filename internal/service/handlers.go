package service

import (
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/httputil"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status         string                 `json:"status"`
	ServerID       string                 `json:"server_id"`
	SessionID      string                 `json:"session_id"`
	URL            string                 `json:"url"`
	Mode           string                 `json:"mode"`
	TickPending    bool                   `json:"tick_pending"`
	RetryActive    bool                   `json:"retry_active"`
	RetryUntil     *time.Time             `json:"retry_until,omitempty"`
	FetchInFlight  bool                   `json:"fetch_in_flight"`
	Ticks          int64                  `json:"ticks"`
	Accepted       int64                  `json:"accepted"`
	Delivered      int64                  `json:"delivered"`
	Navigations    int64                  `json:"navigations"`
	LastAccepted   *time.Time             `json:"last_accepted,omitempty"`
	LastNavigation *types.NavigationEvent `json:"last_navigation,omitempty"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	Memory         *MemoryStats           `json:"memory,omitempty"`
}

// MemoryStats is the host memory reading included in /health
type MemoryStats struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// memoryReader is swapped in tests
var memoryReader = func() (*MemoryStats, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &MemoryStats{TotalBytes: v.Total, AvailableBytes: v.Available, UsedPercent: v.UsedPercent}, nil
}

func (s *Server) handleLatest(ctx *fasthttp.RequestCtx) int {
	result, ok := s.latest.Latest()
	if !ok {
		return httputil.JSONError(ctx, "no result accepted yet", fasthttp.StatusNotFound)
	}
	return httputil.JSONData(ctx, result, fasthttp.StatusOK)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) int {
	st := s.watcher.Status()

	resp := HealthResponse{
		Status:        "ok",
		ServerID:      s.cfg.ID,
		SessionID:     st.SessionID,
		URL:           st.URL,
		Mode:          st.Mode,
		TickPending:   st.TickPending,
		RetryActive:   st.RetryActive,
		FetchInFlight: st.FetchInFlight,
		Ticks:         st.Ticks,
		Accepted:      st.Accepted,
		Delivered:     s.latest.Accepted(),
		Navigations:   st.Navigations,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	if st.RetryActive {
		resp.RetryUntil = &st.RetryUntil
	}
	if !st.LastAccepted.IsZero() {
		resp.LastAccepted = &st.LastAccepted
	}
	if nav, ok := s.latest.LastNavigation(); ok {
		resp.LastNavigation = &nav
	}

	memory, err := memoryReader()
	if err != nil {
		s.logger.Debug("Failed to read host memory", zap.Error(err))
	} else {
		resp.Memory = memory
	}

	return httputil.JSONData(ctx, resp, fasthttp.StatusOK)
}

func (s *Server) handleRefresh(ctx *fasthttp.RequestCtx) int {
	s.watcher.RequestRefresh()
	s.logger.Debug("Refresh requested", zap.String("remote", ctx.RemoteIP().String()))
	return httputil.JSONSuccess(ctx, "refresh scheduled", fasthttp.StatusAccepted)
}

func (s *Server) handleRefetch(ctx *fasthttp.RequestCtx) int {
	s.watcher.RequestRefetch()
	s.logger.Debug("Refetch requested", zap.String("remote", ctx.RemoteIP().String()))
	return httputil.JSONSuccess(ctx, "refetch scheduled", fasthttp.StatusAccepted)
}
