package browser

import (
	"fmt"

	"github.com/chromedp/cdproto/network"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/pkg/pattern"
)

// defaultBlockedPatterns are analytics and ad hosts the watched page never needs.
// Matched against the full request URL.
var defaultBlockedPatterns = []string{
	"*2mdn.net*",
	"*doubleclick.net*",
	"*google-analytics.com*",
	"*analytics.google.com*",
	"*googleadservices.com*",
	"*googlesyndication.com*",
	"*googletagservices.com*",
	"*googletagmanager.com*",
	"*facebook.com*",
	"*hotjar.com*",
	"*clarity.ms*",
	"*static.cloudflareinsights.com*",
}

// Blocklist decides which subresource requests of the watched tab are failed
// before they reach the network. The top-level document is never blocked.
type Blocklist struct {
	patterns      []*pattern.Pattern
	resourceTypes map[network.ResourceType]struct{}
}

// NewBlocklist compiles the configured rules, prepending the built-in tracker
// list unless it is switched off.
func NewBlocklist(cfg configtypes.BlockConfig) (*Blocklist, error) {
	raw := make([]string, 0, len(defaultBlockedPatterns)+len(cfg.Patterns))
	if cfg.Defaults == nil || *cfg.Defaults {
		raw = append(raw, defaultBlockedPatterns...)
	}
	raw = append(raw, cfg.Patterns...)

	patterns, err := pattern.CompileAll(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compile block patterns: %w", err)
	}

	bl := &Blocklist{
		patterns:      patterns,
		resourceTypes: make(map[network.ResourceType]struct{}, len(cfg.ResourceTypes)),
	}
	for _, rt := range cfg.ResourceTypes {
		bl.resourceTypes[network.ResourceType(rt)] = struct{}{}
	}
	return bl, nil
}

// Empty reports whether the blocklist can never block anything; request
// interception is skipped entirely in that case
func (b *Blocklist) Empty() bool {
	return b == nil || (len(b.patterns) == 0 && len(b.resourceTypes) == 0)
}

// Blocked reports whether a request for rawURL of type rt should be failed
func (b *Blocklist) Blocked(rawURL string, rt network.ResourceType) bool {
	if b == nil || rt == network.ResourceTypeDocument {
		return false
	}
	if _, ok := b.resourceTypes[rt]; ok {
		return true
	}
	return pattern.MatchAny(b.patterns, rawURL)
}
