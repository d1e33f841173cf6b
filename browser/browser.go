// Package browser drives the venue's web trading interface over the
// devtools protocol. chromedp owns the Chromium process, the target
// attach, and the protocol transport; this package layers humanized
// input pacing and the trading page's selectors on top.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/chromedp/chromedp"

	"github.com/arkflip/arkflip/session"
)

// DefaultUserAgent matches a plain desktop Chrome so the venue serves
// the standard trading interface.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/105.0.0.0 Safari/537.36"

// Browser owns one Chromium process and the devtools session attached
// to its first tab.
type Browser struct {
	execPath    string
	port        int
	userAgent   string
	userDataDir string
	headless    bool
	proxy       *session.Proxy
	logger      *slog.Logger

	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithExecPath sets the browser binary.
func WithExecPath(path string) BrowserOption {
	return func(b *Browser) { b.execPath = path }
}

// WithDebugPort pins the remote debugging port so an operator can
// attach their own inspector to the running session.
func WithDebugPort(port int) BrowserOption {
	return func(b *Browser) { b.port = port }
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(ua string) BrowserOption {
	return func(b *Browser) { b.userAgent = ua }
}

// WithUserDataDir sets the profile directory.
func WithUserDataDir(dir string) BrowserOption {
	return func(b *Browser) { b.userDataDir = dir }
}

// WithHeadless toggles headless operation. The venue's bot checks are
// less forgiving headless, so the default is a visible window.
func WithHeadless(headless bool) BrowserOption {
	return func(b *Browser) { b.headless = headless }
}

// WithProxy routes browser traffic through proxy. Credentials are
// supplied separately over the Fetch domain after attach.
func WithProxy(p *session.Proxy) BrowserOption {
	return func(b *Browser) { b.proxy = p }
}

// WithBrowserLogger overrides the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(b *Browser) { b.logger = logger.WithGroup("browser") }
}

// New builds a Browser with production defaults.
func New(opts ...BrowserOption) *Browser {
	b := &Browser{
		execPath:  "chromium",
		port:      9222,
		userAgent: DefaultUserAgent,
		logger:    slog.Default().WithGroup("browser"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the browser process and attaches to its first tab. The
// process is bound to ctx; when ctx is cancelled the browser is torn
// down.
func (b *Browser) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(b.execPath),
		chromedp.UserAgent(b.userAgent),
		chromedp.Flag("remote-debugging-port", strconv.Itoa(b.port)),
		chromedp.Flag("remote-allow-origins", "*"),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if !b.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.userDataDir))
	}
	if b.proxy != nil {
		opts = append(opts, chromedp.ProxyServer(b.proxy.Server))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.logf), chromedp.WithErrorf(b.errf))

	// an empty Run starts the process and attaches, so launch failures
	// surface here instead of on the first page interaction
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	b.tab = tab
	b.tabCancel = tabCancel
	b.allocCancel = allocCancel
	b.logger.Info("browser started",
		slog.Int("debug_port", b.port),
		slog.Bool("proxied", b.proxy != nil))
	return nil
}

// Stop closes the devtools session and reaps the browser process.
func (b *Browser) Stop() error {
	if b.tab == nil {
		return nil
	}
	err := chromedp.Cancel(b.tab)
	b.tabCancel()
	b.allocCancel()
	return err
}

func (b *Browser) logf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func (b *Browser) errf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...))
}
