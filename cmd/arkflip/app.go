package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arkflip/arkflip/arkflip"
	"github.com/arkflip/arkflip/browser"
	"github.com/arkflip/arkflip/cmd/arkflip/internal/config"
	"github.com/arkflip/arkflip/controller"
	"github.com/arkflip/arkflip/pacing"
	"github.com/arkflip/arkflip/session"
	"github.com/arkflip/arkflip/supervisor"
)

// Session owns one browser lifetime: launch, attach, trade, teardown.
// When it returns with an error the caller tears everything down and
// starts a fresh Session after a cooldown.
type Session struct {
	cfg      config.AppConfig
	logger   *slog.Logger
	recorder arkflip.DecisionRecorder

	browser *browser.Browser
	page    *browser.Page
}

// NewSession launches the browser, attaches to the trading page, and
// wires the full controller stack.
func NewSession(cfg config.AppConfig, logger *slog.Logger, recorder arkflip.DecisionRecorder) *Session {
	return &Session{cfg: cfg, logger: logger, recorder: recorder}
}

func (s *Session) pair() arkflip.Pair {
	return arkflip.Pair{Base: s.cfg.Asset, Quote: s.cfg.Quote}
}

// Run drives one full session until the context is cancelled or the
// page becomes undrivable.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	proxy, err := session.LoadProxy(s.cfg.ProxyPath)
	if err != nil {
		return fmt.Errorf("loading proxy: %w", err)
	}
	cookies, err := session.LoadCookies(s.cfg.CookiePath, "arkm.com")
	if err != nil {
		return fmt.Errorf("loading cookies: %w", err)
	}

	s.browser = browser.New(
		browser.WithExecPath(s.cfg.BrowserPath),
		browser.WithDebugPort(s.cfg.DebugPort),
		browser.WithUserDataDir(s.cfg.UserDataDir),
		browser.WithHeadless(s.cfg.Headless),
		browser.WithProxy(proxy),
		browser.WithBrowserLogger(s.logger),
	)
	if err := s.browser.Start(ctx); err != nil {
		return err
	}

	sleeper := pacing.NewSleeper(s.cfg.SpeedFactor, nil)
	if s.page, err = browser.NewPage(ctx, s.browser,
		browser.WithPageSleeper(sleeper),
		browser.WithPageLogger(s.logger),
	); err != nil {
		return err
	}

	if err := s.page.EnableProxyAuth(ctx, proxy); err != nil {
		return err
	}
	if err := s.page.AddInitScript(ctx, browser.FingerprintScript); err != nil {
		return err
	}
	if err := s.page.SetCookies(ctx, cookies); err != nil {
		return err
	}

	tradeURL := fmt.Sprintf("%s/%s_%s", s.cfg.TradeURL, s.cfg.Asset, s.cfg.Quote)
	if err := s.page.Navigate(ctx, tradeURL); err != nil {
		return err
	}
	if err := s.saveCookies(ctx); err != nil {
		s.logger.Warn("initial cookie save failed", slog.String("error", err.Error()))
	}

	market := browser.NewMarket(s.page, s.pair(), browser.WithMarketLogger(s.logger))
	panel := browser.NewPanel(s.page,
		browser.WithPanelSleeper(sleeper),
		browser.WithPanelLogger(s.logger),
	)

	ctrlCfg := controller.Config{
		Pair:          s.pair(),
		SizingBand:    controller.Range{Low: s.cfg.SizingMin, High: s.cfg.SizingMax},
		DeductionBand: controller.Range{Low: s.cfg.DeductionMin, High: s.cfg.DeductionMax},
		IncrementBand: controller.Range{Low: s.cfg.IncrementMin, High: s.cfg.IncrementMax},
		Checks:        s.cfg.Checks,
		BuyCheckWait:  pacing.Band{Min: s.cfg.BuyCheckWait, Max: s.cfg.BuyCheckWait},
		SellCheckWait: pacing.Band{Min: s.cfg.SellCheckWaitMin, Max: s.cfg.SellCheckWaitMax},
		CancelRecheckWait: pacing.Band{
			Min: 2 * time.Second,
			Max: 3 * time.Second,
		},
	}
	// controller and supervisor pick their loggers up from the context
	ctrl := controller.New(market, panel, ctrlCfg,
		controller.WithSleeper(sleeper),
		controller.WithRecorder(s.recorder),
	)

	sup := supervisor.New(ctrl, market,
		supervisor.WithSleeper(sleeper),
		supervisor.WithPollInterval(pacing.Band{
			Min: s.cfg.PollInterval,
			Max: s.cfg.PollInterval + s.cfg.PollInterval/2,
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		return s.resaveCookies(gctx)
	})
	return g.Wait()
}

// resaveCookies snapshots the browser's cookies periodically so a fresh
// session can resume the venue login.
func (s *Session) resaveCookies(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CookieResave)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.saveCookies(ctx); err != nil {
				s.logger.Warn("cookie snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Session) saveCookies(ctx context.Context) error {
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := session.SaveCookies(s.cfg.CookiePath, cookies); err != nil {
		return err
	}
	s.logger.Debug("cookies saved", slog.Int("count", len(cookies)))
	return nil
}

func (s *Session) teardown() {
	if s.browser != nil {
		if err := s.browser.Stop(); err != nil {
			s.logger.Warn("browser shutdown failed", slog.String("error", err.Error()))
		}
	}
}
