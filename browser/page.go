package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/arkflip/arkflip/pacing"
	"github.com/arkflip/arkflip/session"
)

// ErrNoElement is returned when a selector matches nothing.
var ErrNoElement = errors.New("browser: no element matches selector")

const (
	// mouseSteps is the number of intermediate pointer positions on the
	// way to a click target.
	mouseSteps = 10

	defaultSelectorTimeout = 5 * time.Second
)

var (
	stepDelay     = pacing.Band{Min: 10 * time.Millisecond, Max: 30 * time.Millisecond}
	preClickDelay = pacing.Band{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond}
	settleDelay   = pacing.Band{Min: 500 * time.Millisecond, Max: 2 * time.Second}
)

// Page drives the trading tab. All interaction is paced through the
// shared sleeper and rate gate so the overall rhythm follows the
// configured speed factor.
type Page struct {
	tab    context.Context
	sleep  pacing.Sleeper
	gate   *pacing.Gate
	rng    *rand.Rand
	logger *slog.Logger
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithPageSleeper replaces the interaction pacing.
func WithPageSleeper(s pacing.Sleeper) PageOption {
	return func(p *Page) { p.sleep = s }
}

// WithPageRand fixes the randomness source for pointer jitter.
func WithPageRand(rng *rand.Rand) PageOption {
	return func(p *Page) { p.rng = rng }
}

// WithPageLogger overrides the logger.
func WithPageLogger(logger *slog.Logger) PageOption {
	return func(p *Page) { p.logger = logger.WithGroup("page") }
}

// NewPage attaches to the started browser's tab and enables the network
// domain for cookie and request plumbing.
func NewPage(ctx context.Context, b *Browser, opts ...PageOption) (*Page, error) {
	p := &Page{
		tab:    b.tab,
		sleep:  pacing.NewSleeper(1, nil),
		gate:   pacing.NewGate(300 * time.Millisecond),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: slog.Default().WithGroup("page"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.run(ctx, network.Enable()); err != nil {
		return nil, err
	}
	return p, nil
}

// run executes devtools actions against the tab, honouring the caller's
// context alongside the tab's own lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
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

// executor carries the tab's target so event handlers can issue
// protocol commands outside a Run.
func (p *Page) executor() context.Context {
	return cdp.WithExecutor(p.tab, chromedp.FromContext(p.tab).Target)
}

// EnableProxyAuth answers proxy authentication challenges with the
// stored credentials and waves all other paused requests through.
func (p *Page) EnableProxyAuth(ctx context.Context, proxy *session.Proxy) error {
	if proxy == nil || proxy.Username == "" {
		return nil
	}
	if err := p.run(ctx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
		return err
	}

	chromedp.ListenTarget(p.tab, func(ev any) {
		// handlers must not block the event dispatcher, and the
		// continue commands are themselves protocol calls
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			resp := &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: proxy.Username,
				Password: proxy.Password,
			}
			go func() {
				if err := fetch.ContinueWithAuth(ev.RequestID, resp).Do(p.executor()); err != nil {
					p.logger.Warn("proxy auth response failed", slog.String("error", err.Error()))
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = fetch.ContinueRequest(ev.RequestID).Do(p.executor())
			}()
		}
	})
	return nil
}

// AddInitScript installs script to run in every new document before the
// page's own scripts.
func (p *Page) AddInitScript(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(actx)
		return err
	}))
}

// Navigate loads url, waits for the load event, and pauses for the page
// to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	loadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := p.run(loadCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return p.sleep.Pause(ctx, settleDelay)
}

// Reload reloads the page and waits for it to load again.
func (p *Page) Reload(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := p.run(loadCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	// hold further interaction while the freshly loaded page hydrates
	p.gate.Cooldown(2 * time.Second)
	return p.sleep.Pause(ctx, settleDelay)
}

// eval runs expression in the page and decodes its value into out. The
// expressions below always return an object or a boolean, never null,
// so decoding is unambiguous.
func (p *Page) eval(ctx context.Context, expression string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

// Present reports whether any element matches selector.
func (p *Page) Present(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := p.eval(ctx, expr, &found); err != nil {
		return false, err
	}
	return found, nil
}

// TextContent returns the trimmed text of the first matching element.
// A missing element is ErrNoElement.
func (p *Page) TextContent(ctx context.Context, selector string) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el === null
			? {found: false, text: ""}
			: {found: true, text: el.textContent.trim()};
	})()`, selector)
	if err := p.eval(ctx, expr, &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return res.Text, nil
}

// WaitForSelector polls until selector matches something or the timeout
// passes.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultSelectorTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		found, err := p.Present(waitCtx, selector)
		if err == nil && found {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("%w: %s (waited %s)", ErrNoElement, selector, timeout)
		case <-ticker.C:
		}
	}
}

type boundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (p *Page) bounds(ctx context.Context, selector string) (boundingBox, error) {
	var res struct {
		Found  bool    `json:"found"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el === null) return {found: false};
		const r = el.getBoundingClientRect();
		return {found: true, x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, selector)
	if err := p.eval(ctx, expr, &res); err != nil {
		return boundingBox{}, err
	}
	if !res.Found {
		return boundingBox{}, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return boundingBox{X: res.X, Y: res.Y, Width: res.Width, Height: res.Height}, nil
}

type point struct {
	x, y float64
}

// pointerPath interpolates steps positions toward the target with a
// little jitter so the trajectory does not look synthetic.
func pointerPath(targetX, targetY float64, steps int, rng *rand.Rand) []point {
	path := make([]point, 0, steps)
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		path = append(path, point{
			x: targetX*frac + rng.Float64()*2 - 1,
			y: targetY*frac + rng.Float64()*2 - 1,
		})
	}
	return path
}

// moveToElement walks the pointer toward the element center in jittered
// steps.
func (p *Page) moveToElement(ctx context.Context, selector string) error {
	box, err := p.bounds(ctx, selector)
	if err != nil {
		return err
	}
	for _, pt := range pointerPath(box.X+box.Width/2, box.Y+box.Height/2, mouseSteps, p.rng) {
		if err := p.run(ctx, input.DispatchMouseEvent(input.MouseMoved, pt.x, pt.y)); err != nil {
			return err
		}
		if err := p.sleep.Pause(ctx, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

// ClickSelector waits for the element, glides the pointer to it, and
// clicks with real input events.
func (p *Page) ClickSelector(ctx context.Context, selector string) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	if err := p.WaitForSelector(ctx, selector, defaultSelectorTimeout); err != nil {
		return err
	}
	if err := p.moveToElement(ctx, selector); err != nil {
		return err
	}
	if err := p.sleep.Pause(ctx, preClickDelay); err != nil {
		return err
	}

	box, err := p.bounds(ctx, selector)
	if err != nil {
		return err
	}
	x := box.X + box.Width/2
	y := box.Y + box.Height/2
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).WithClickCount(1)
	if err := p.run(ctx, press, release); err != nil {
		return err
	}
	return p.sleep.Pause(ctx, preClickDelay)
}

// ForceClick clicks via the element's own click handler, bypassing input
// events. Used when the element is present but not clickable.
func (p *Page) ForceClick(ctx context.Context, selector string) error {
	var clicked bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el === null) return false;
		el.click();
		return true;
	})()`, selector)
	if err := p.eval(ctx, expr, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

// Fill moves to the input field and replaces its value, dispatching the
// input event through the native value setter so framework-bound inputs
// pick the change up.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	if err := p.WaitForSelector(ctx, selector, defaultSelectorTimeout); err != nil {
		return err
	}
	if err := p.moveToElement(ctx, selector); err != nil {
		return err
	}
	if err := p.sleep.Pause(ctx, preClickDelay); err != nil {
		return err
	}

	var filled bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el === null) return false;
		el.focus();
		const setter = Object.getOwnPropertyDescriptor(
			window.HTMLInputElement.prototype, 'value').set;
		setter.call(el, %q);
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, selector, value)
	if err := p.eval(ctx, expr, &filled); err != nil {
		return err
	}
	if !filled {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return p.sleep.Pause(ctx, preClickDelay)
}

// Cookies returns the browser's cookies for persistence.
func (p *Page) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(actx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return toSessionCookies(cookies), nil
}

// SetCookies installs saved cookies before navigation.
func (p *Page) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	return p.run(ctx, storage.SetCookies(toCookieParams(cookies)))
}

func toSessionCookies(cookies []*network.Cookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, session.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out
}

func toCookieParams(cookies []session.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out
}
