package types

import (
	"strings"
	"time"
)

// PageMode selects which embedded record the extractor looks for
type PageMode int

const (
	// PageModeProfile is any page that is not a single video or photo post
	PageModeProfile PageMode = iota
	// PageModeVideoOrPhoto is a /video/ or /photo/ detail page
	PageModeVideoOrPhoto
)

// String returns the mode name used in logs, events and the overlay
func (m PageMode) String() string {
	if m == PageModeVideoOrPhoto {
		return "video"
	}
	return "profile"
}

// PageModeFromPath derives the mode from a URL path. Recomputed on demand, never stored.
func PageModeFromPath(path string) PageMode {
	if strings.Contains(path, "/video/") || strings.Contains(path, "/photo/") {
		return PageModeVideoOrPhoto
	}
	return PageModeProfile
}

// Fragment sources
const (
	SourceDocument = "document"
	SourceState    = "state"
	SourceFetch    = "fetch"
)

// Dedup policies for the DOM and network channels
const (
	DedupShared   = "shared"
	DedupSeparate = "separate"
)

// Compression algorithms for published payloads
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// Default state containers, tried in this order
var DefaultStateContainers = []string{
	"__UNIVERSAL_DATA_FOR_REHYDRATION__",
	"SIGI_STATE",
	"__NEXT_DATA__",
}

const (
	// DefaultGlobalName is the window variable holding the latest accepted fragment
	DefaultGlobalName = "__tiktok_webapp_video_detail"
	// DefaultMarkerAttribute is set to "true" on <html> once any payload is accepted
	DefaultMarkerAttribute = "data-tiktok-video-detail"
	// DefaultNavigationEvent is the CustomEvent dispatched in the page on navigation
	DefaultNavigationEvent = "tiktok:locationchange"
	// DefaultOverlayID is the element id of the status readout
	DefaultOverlayID = "tiktok-detail-overlay"
)

// NavigationEvent is broadcast whenever the coordinator detects a URL change
type NavigationEvent struct {
	SessionID  string    `json:"session_id"`
	From       string    `json:"from"`
	URL        string    `json:"url"`
	Mode       string    `json:"mode"`
	DetectedAt time.Time `json:"detected_at"`
	Trigger    string    `json:"trigger"`
}

// Navigation triggers
const (
	TriggerHistory = "history"
	TriggerFrame   = "frame"
	TriggerPoll    = "poll"
	TriggerAPI     = "api"
)
