// Package browser hosts the watched page in Chrome through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
)

// Browser is one Chrome process, launched locally or attached over remote_url
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         configtypes.ChromeConfig
	version     string
	logger      *zap.Logger
}

// Launch starts (or attaches to) Chrome and waits until it answers
func Launch(cfg configtypes.ChromeConfig, logger *zap.Logger) (*Browser, error) {
	b := &Browser{cfg: cfg, logger: logger}

	if cfg.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), execOptions(cfg)...)
	}
	b.ctx, b.cancel = chromedp.NewContext(b.allocCtx)

	startCtx, cancel := context.WithTimeout(b.ctx, cfg.StartupTimeout.ToDuration())
	defer cancel()

	err := chromedp.Run(startCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		b.version = product
		return nil
	}))
	if err != nil {
		b.Close()
		return nil, errors.Join(ErrLaunchFailed, err)
	}

	logger.Info("Chrome started",
		zap.String("version", b.version),
		zap.Bool("remote", cfg.RemoteURL != ""))

	return b, nil
}

func execOptions(cfg configtypes.ChromeConfig) []chromedp.ExecAllocatorOption {
	headless := cfg.Headless == nil || *cfg.Headless

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	)
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	return opts
}

// Version is the product string reported by Chrome
func (b *Browser) Version() string {
	return b.version
}

// Close terminates the browser (or detaches from a remote one)
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.logger.Debug("Chrome closed")
}

// OpenTab opens target in a new tab and installs the mutation observer
func (b *Browser) OpenTab(target configtypes.TargetConfig) (*Tab, error) {
	blocklist, err := NewBlocklist(b.cfg.Block)
	if err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	t := &Tab{
		ctx:         tabCtx,
		cancel:      cancel,
		callTimeout: b.cfg.CallTimeout.ToDuration(),
		blocklist:   blocklist,
		logger:      b.logger,
	}

	chromedp.ListenTarget(tabCtx, t.handleEvent)

	loadCtx, loadCancel := context.WithTimeout(tabCtx, target.LoadTimeout.ToDuration())
	defer loadCancel()

	if err := chromedp.Run(loadCtx, t.setupActions(b.cfg, target)...); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigateFailed, target.URL, err)
	}

	b.logger.Info("Tab opened",
		zap.String("url", target.URL),
		zap.String("user_agent", t.userAgent))

	return t, nil
}
