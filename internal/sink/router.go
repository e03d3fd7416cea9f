package sink

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Router fans results out to every sink. A failing sink is logged and counted;
// it never stops delivery to the others and never reaches the caller. Each
// sink call is bounded by the router's timeout.
type Router struct {
	sinks    []Sink
	timeout  time.Duration
	recorder ErrorRecorder
	logger   *zap.Logger
}

// NewRouter creates a router; recorder may be nil and a non-positive timeout
// leaves sink calls bounded only by the caller's context
func NewRouter(sinks []Sink, timeout time.Duration, recorder ErrorRecorder, logger *zap.Logger) *Router {
	return &Router{
		sinks:    sinks,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
	}
}

func (r *Router) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Publish hands result to every sink in registration order
func (r *Router) Publish(ctx context.Context, result *extract.Result) {
	for _, s := range r.sinks {
		callCtx, cancel := r.callContext(ctx)
		err := s.Publish(callCtx, result)
		cancel()
		if err != nil {
			r.fail(s.Name(), "publish", err)
		}
	}
}

// NavigationChanged notifies the sinks that care about URL changes
func (r *Router) NavigationChanged(ctx context.Context, event types.NavigationEvent) {
	for _, s := range r.sinks {
		ns, ok := s.(NavigationSink)
		if !ok {
			continue
		}
		callCtx, cancel := r.callContext(ctx)
		err := ns.NavigationChanged(callCtx, event)
		cancel()
		if err != nil {
			r.fail(s.Name(), "navigation", err)
		}
	}
}

func (r *Router) fail(name, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if r.recorder != nil {
		r.recorder.RecordSinkError(name)
	}
	r.logger.Warn("Sink failed",
		zap.String("sink", name),
		zap.String("op", op),
		zap.Error(err))
}

// Close closes every sink and returns the combined errors
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
