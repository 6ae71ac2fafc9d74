/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package w2w

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/telemetry"
)

// BrowserFetcher renders schedule pages in a headless Chrome, for W2W
// deployments that build the swl calls client side. Authentication still
// happens through the HTTP session; its cookies are copied into the page.
type BrowserFetcher struct {
	session    *Session
	controlURL string
	logger     zerolog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserFetcher creates a fetcher that connects to controlURL, or launches
// a local headless browser when controlURL is empty.
func NewBrowserFetcher(session *Session, controlURL string, logger zerolog.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		session:    session,
		controlURL: controlURL,
		logger:     logger.With().Str("component", "w2w").Str("fetcher", "browser").Logger(),
	}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		f.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	f.browser = browser
	f.logger.Info().Bool("launched", f.launcher != nil).Msg("browser connected")
	return browser, nil
}

// FetchSchedule implements Fetcher.
func (f *BrowserFetcher) FetchSchedule(ctx context.Context, filterID, date string) (records []models.DutyRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "w2w.fetch_schedule_browser",
		attribute.String("w2w.filter", filterID),
		attribute.String("w2w.date", date),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.session.Ensure(ctx); err != nil {
		return nil, err
	}
	browser, err := f.connect()
	if err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "error").Inc()
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	cookies := make([]*proto.NetworkCookieParam, 0)
	for _, c := range f.session.Cookies() {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   f.session.BaseURL(),
		})
	}
	if len(cookies) > 0 {
		if err := page.SetCookies(cookies); err != nil {
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}

	if err := page.Navigate(f.session.SchedulePageURL(filterID, date)); err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "error").Inc()
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "error").Inc()
		return nil, fmt.Errorf("wait load: %w", err)
	}
	body, err := page.HTML()
	if err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "error").Inc()
		return nil, fmt.Errorf("read page: %w", err)
	}
	if reason := rejectionReason(body); reason != "" {
		telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "error").Inc()
		if err := f.session.Login(ctx, reason); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	telemetry.W2WRequestsTotal.WithLabelValues("schedule_browser", "ok").Inc()

	records = ParseSchedule(body, f.logger)
	f.logger.Debug().Str("filter", filterID).Str("date", date).Int("records", len(records)).Msg("schedule rendered")
	return records, nil
}

// Close disconnects the browser and stops a launched one.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Cleanup()
		f.launcher = nil
	}
	return err
}

// NewFetcher selects the fetcher named by kind ("http" or "browser").
func NewFetcher(kind string, session *Session, controlURL string, logger zerolog.Logger) (Fetcher, error) {
	switch kind {
	case "", "http":
		return NewHTTPFetcher(session, logger), nil
	case "browser":
		return NewBrowserFetcher(session, controlURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown schedule fetcher %q", kind)
	}
}
