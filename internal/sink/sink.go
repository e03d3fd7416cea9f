// Package sink delivers accepted results to the page and to external consumers.
package sink

import (
	"context"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Sink receives every accepted result, in acceptance order
type Sink interface {
	Name() string
	Publish(ctx context.Context, result *extract.Result) error
	Close() error
}

// NavigationSink is implemented by sinks that also want URL changes
type NavigationSink interface {
	NavigationChanged(ctx context.Context, event types.NavigationEvent) error
}

// ErrorRecorder counts sink failures
type ErrorRecorder interface {
	RecordSinkError(sink string)
}
