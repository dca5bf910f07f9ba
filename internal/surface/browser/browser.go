// Package browser implements surface.Surface on a live Chromium tab driven
// through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	appLog "schedfill/internal/log"
	"schedfill/internal/surface"
)

const defaultStartTimeout = 30 * time.Second

// Options describe how to reach the scheduling page.
type Options struct {
	// URL of the scheduling page. In attach mode it is matched as a prefix
	// against open tabs; otherwise the tab navigates to it.
	URL string

	// RemoteURL is the DevTools endpoint of an already running, logged-in
	// browser (e.g. "ws://127.0.0.1:9222"). Empty launches a new browser.
	RemoteURL string

	// UserDataDir keeps the launched browser's profile (and session
	// cookies) between runs.
	UserDataDir string
	ExecPath    string
	Headless    bool

	// StartTimeout bounds the first page load.
	StartTimeout time.Duration
}

// Tab is a chromedp tab exposed as a surface.Surface.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ surface.Surface = (*Tab)(nil)

// Open connects to (or launches) a browser and returns the tab showing
// opts.URL.
func Open(parent context.Context, opts Options) (*Tab, error) {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultStartTimeout
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, opts.RemoteURL)
	} else {
		ao := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		if opts.UserDataDir != "" {
			ao = append(ao, chromedp.UserDataDir(opts.UserDataDir))
		}
		if opts.ExecPath != "" {
			ao = append(ao, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, ao...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancelAll := func() {
		browserCancel()
		allocCancel()
	}

	// The first Run allocates the browser and binds it to the context it
	// is given, so it must not carry the start timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelAll()
		return nil, fmt.Errorf("browser: start failed: %w", err)
	}

	tab := &Tab{ctx: browserCtx, cancel: cancelAll}

	startCtx, startCancel := context.WithTimeout(parent, opts.StartTimeout)
	defer startCancel()

	if opts.RemoteURL != "" && opts.URL != "" {
		tabCtx, tabCancel, err := attach(browserCtx, opts.URL)
		if err != nil {
			cancelAll()
			return nil, err
		}
		if tabCtx != nil {
			tab.ctx = tabCtx
			tab.cancel = func() {
				tabCancel()
				cancelAll()
			}
			appLog.Info("attached to existing tab", "url", opts.URL)
			return tab, nil
		}
	}

	if opts.URL != "" {
		err := tab.run(startCtx,
			chromedp.Navigate(opts.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		if err != nil {
			tab.Close()
			return nil, fmt.Errorf("browser: navigate failed: %w", err)
		}
		appLog.Info("opened scheduling page", "url", opts.URL)
	}

	return tab, nil
}

// attach looks for an open page whose URL starts with prefix. A nil
// context means no such tab exists.
func attach(browserCtx context.Context, prefix string) (context.Context, context.CancelFunc, error) {
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("browser: list targets: %w", err)
	}
	id := pickTarget(targets, prefix)
	if id == "" {
		return nil, nil, nil
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("browser: attach %s: %w", id, err)
	}
	return tabCtx, tabCancel, nil
}

// pickTarget returns the first page target whose URL starts with prefix.
func pickTarget(targets []*target.Info, prefix string) target.ID {
	for _, t := range targets {
		if t == nil || t.Type != "page" || !strings.HasPrefix(t.URL, prefix) {
			continue
		}
		return t.TargetID
	}
	return ""
}

// Close releases the tab and the browser connection.
func (t *Tab) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Screenshot writes a full-page PNG of the current page to path.
func (t *Tab) Screenshot(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("browser: screenshot path is required")
	}
	var png []byte
	if err := t.run(ctx, chromedp.FullScreenshot(&png, 90)); err != nil {
		return fmt.Errorf("browser: screenshot failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("browser: failed to write PNG: %w", err)
	}
	return nil
}

// run executes actions on the tab, aborting when ctx is done. Cancelling
// the derived context stops the actions without closing the tab.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
