/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package w2w scrapes duty records from WhenToWork manager schedules.
package w2w

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/telemetry"
)

var (
	// ErrLoginFailed is returned when a login does not yield a session id and dll.
	ErrLoginFailed = errors.New("w2w login failed")
	// ErrSessionExpired is returned when W2W answers with its login page.
	ErrSessionExpired = errors.New("w2w session expired")
	// ErrNoSession is returned by a CredentialStore holding nothing for the account.
	ErrNoSession = errors.New("no stored w2w session")
)

// Page markers W2W serves instead of the requested page.
const (
	markerLogin    = "Log into your WhenToWork account"
	markerSecurity = "Your session could not be verified"
)

// Login reasons, used in logs and metrics.
const (
	ReasonMissingSID = "missing session id"
	ReasonMissingDLL = "missing dll"
	ReasonExpired    = "expired"
	ReasonSecurity   = "security exception"
	ReasonForced     = "forced"
)

const maxPageBytes = 8 << 20

var sidPattern = regexp.MustCompile(`SID=([0-9A-Za-z]+)`)

// CredentialStore persists session credentials between runs.
type CredentialStore interface {
	LoadSession(ctx context.Context, account string) (models.W2WSession, error)
	SaveSession(ctx context.Context, sess models.W2WSession) error
}

type storedCookie struct {
	Login bool   `json:"login,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is an authenticated W2W client. It is safe for concurrent use.
type Session struct {
	cfg        config.W2WConfig
	base       *url.URL
	login      *url.URL
	store      CredentialStore
	logger     zerolog.Logger
	client     *http.Client
	dllPattern *regexp.Regexp

	mu  sync.Mutex
	sid string
	dll string
}

// NewSession builds a session for cfg. store may be nil, in which case
// credentials live only in memory.
func NewSession(cfg config.W2WConfig, store CredentialStore, logger zerolog.Logger) (*Session, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse w2w base url: %w", err)
	}
	login, err := url.Parse(cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("parse w2w login url: %w", err)
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Session{
		cfg:        cfg,
		base:       base,
		login:      login,
		store:      store,
		logger:     logger.With().Str("component", "w2w").Logger(),
		client:     telemetry.HTTPClient(timeout),
		dllPattern: regexp.MustCompile(regexp.QuoteMeta(cfg.BaseURL) + `([^/?]*dll)/`),
	}
	if err := s.resetJar(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) resetJar() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	s.client.Jar = jar
	return nil
}

// Credentials returns the current session id and dll path segment.
func (s *Session) Credentials() (sid, dll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid, s.dll
}

// Cookies returns the cookies held for the W2W host.
func (s *Session) Cookies() []*http.Cookie {
	return s.client.Jar.Cookies(s.base)
}

// BaseURL returns the cgi-bin root every page URL is built from.
func (s *Session) BaseURL() string {
	return s.cfg.BaseURL
}

// Restore loads stored credentials into the session.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(ctx)
}

func (s *Session) restoreLocked(ctx context.Context) error {
	if s.store == nil {
		return ErrNoSession
	}
	stored, err := s.store.LoadSession(ctx, s.cfg.Username)
	if err != nil {
		return err
	}
	var cookies []storedCookie
	if stored.CookiesJSON != "" {
		if err := json.Unmarshal([]byte(stored.CookiesJSON), &cookies); err != nil {
			return fmt.Errorf("decode stored cookies: %w", err)
		}
	}
	var baseCookies, loginCookies []*http.Cookie
	for _, c := range cookies {
		if c.Login {
			loginCookies = append(loginCookies, &http.Cookie{Name: c.Name, Value: c.Value})
		} else {
			baseCookies = append(baseCookies, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	s.client.Jar.SetCookies(s.base, baseCookies)
	s.client.Jar.SetCookies(s.login, loginCookies)
	s.sid, s.dll = stored.SessionID, stored.DLL

	s.logger.Debug().Str("dll", s.dll).Int("cookies", len(cookies)).Msg("session restored")
	return nil
}

// Login signs in with the configured account, replacing any current session.
func (s *Session) Login(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx, reason)
}

func (s *Session) loginLocked(ctx context.Context, reason string) error {
	s.logger.Info().Str("reason", reason).Msg("logging in")
	telemetry.W2WLoginsTotal.WithLabelValues(reason).Inc()

	if err := s.resetJar(); err != nil {
		return err
	}

	form := url.Values{
		"name":             {"signin"},
		"UserId1":          {s.cfg.Username},
		"Password1":        {s.cfg.Password},
		"captcha_required": {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues("login", "error").Inc()
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))

	final := resp.Request.URL.String()
	sid := submatch(sidPattern, final)
	dll := submatch(s.dllPattern, final)
	if sid == "" || dll == "" {
		telemetry.W2WRequestsTotal.WithLabelValues("login", "error").Inc()
		return fmt.Errorf("%w: no session in redirect (status %d)", ErrLoginFailed, resp.StatusCode)
	}
	telemetry.W2WRequestsTotal.WithLabelValues("login", "ok").Inc()

	s.sid, s.dll = sid, dll
	s.logger.Debug().Str("sid", sid).Str("dll", dll).Msg("logged in")

	return s.persistLocked(ctx)
}

func (s *Session) persistLocked(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	cookies := make([]storedCookie, 0)
	for _, c := range s.client.Jar.Cookies(s.base) {
		cookies = append(cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	if s.login.Host != s.base.Host {
		for _, c := range s.client.Jar.Cookies(s.login) {
			cookies = append(cookies, storedCookie{Login: true, Name: c.Name, Value: c.Value})
		}
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := s.store.SaveSession(ctx, models.W2WSession{
		Account:     s.cfg.Username,
		SessionID:   s.sid,
		DLL:         s.dll,
		CookiesJSON: string(data),
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Ensure makes sure the session is usable, restoring stored credentials and
// logging in again when W2W rejects them.
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sid == "" || s.dll == "" {
		if err := s.restoreLocked(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("no usable stored session")
		}
	}
	if s.sid == "" {
		return s.loginLocked(ctx, ReasonMissingSID)
	}
	if s.dll == "" {
		return s.loginLocked(ctx, ReasonMissingDLL)
	}

	body, err := s.getLocked(ctx, "home", s.cfg.BaseURL+s.dll+"/home?SID="+s.sid)
	if err != nil {
		return err
	}
	if reason := rejectionReason(body); reason != "" {
		return s.loginLocked(ctx, reason)
	}
	return nil
}

// SchedulePageURL returns the position view of date restricted to one skill filter.
func (s *Session) SchedulePageURL(filterID, date string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedulePageURLLocked(filterID, date)
}

func (s *Session) schedulePageURLLocked(filterID, date string) string {
	q := url.Values{}
	q.Set("SID", s.sid)
	q.Set("lmi", "")
	q.Set("Date", date)
	q.Set("View", "Pos")
	q.Set("SkillFilter", filterID)
	q.Set("CatFilter", "-1")
	q.Set("StatFilter", "-1")
	return s.cfg.BaseURL + s.dll + "/mgrschedule?" + q.Encode()
}

// SchedulePage loads the raw schedule page, re-authenticating once when the
// session turns out to be stale.
func (s *Session) SchedulePage(ctx context.Context, filterID, date string) (string, error) {
	if err := s.Ensure(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := s.getLocked(ctx, "schedule", s.schedulePageURLLocked(filterID, date))
	if err != nil {
		return "", err
	}
	if reason := rejectionReason(body); reason != "" {
		if err := s.loginLocked(ctx, reason); err != nil {
			return "", err
		}
		body, err = s.getLocked(ctx, "schedule", s.schedulePageURLLocked(filterID, date))
		if err != nil {
			return "", err
		}
		if rejectionReason(body) != "" {
			return "", ErrSessionExpired
		}
	}
	return body, nil
}

func (s *Session) getLocked(ctx context.Context, operation, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", operation, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("w2w %s: %w", operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		telemetry.W2WRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("read w2w %s: %w", operation, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		telemetry.W2WRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("w2w %s: unexpected status %d", operation, resp.StatusCode)
	}
	telemetry.W2WRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return string(data), nil
}

func rejectionReason(body string) string {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, strings.ToLower(markerLogin)):
		return ReasonExpired
	case strings.Contains(lower, strings.ToLower(markerSecurity)):
		return ReasonSecurity
	default:
		return ""
	}
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
