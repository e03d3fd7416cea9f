package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgecomet/detailwatch/internal/browser"
	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/present"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// ScriptRunner evaluates a script in the watched page
type ScriptRunner interface {
	Exec(ctx context.Context, script string) error
}

// PageSink writes results back into the page: the raw fragment into a window
// global, a marker attribute on <html>, and the overlay readout.
type PageSink struct {
	runner ScriptRunner
	cfg    configtypes.PublishConfig
}

func NewPageSink(runner ScriptRunner, cfg configtypes.PublishConfig) *PageSink {
	return &PageSink{runner: runner, cfg: cfg}
}

func (p *PageSink) Name() string {
	return "page"
}

// Publish always stores the fragment. The overlay is only redrawn for parsed
// results so a malformed fragment leaves the previous readout in place.
func (p *PageSink) Publish(ctx context.Context, result *extract.Result) error {
	script := browser.PublishScript(p.cfg.GlobalName, p.cfg.MarkerAttribute, result.Fragment)
	if err := p.runner.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to publish fragment: %w", err)
	}

	if !result.Parsed() || (p.cfg.Overlay != nil && !*p.cfg.Overlay) {
		return nil
	}
	if err := p.runner.Exec(ctx, browser.OverlayScript(types.DefaultOverlayID, present.Line(result.Payload))); err != nil {
		return fmt.Errorf("failed to render overlay: %w", err)
	}
	return nil
}

// NavigationChanged dispatches the navigation CustomEvent in the page
func (p *PageSink) NavigationChanged(ctx context.Context, event types.NavigationEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.runner.Exec(ctx, browser.EventScript(p.cfg.NavigationEvent, detail)); err != nil {
		return fmt.Errorf("failed to dispatch %s: %w", p.cfg.NavigationEvent, err)
	}
	return nil
}

func (p *PageSink) Close() error {
	return nil
}
