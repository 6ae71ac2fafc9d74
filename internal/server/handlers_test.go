/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/auth"
	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/logbuffer"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/report"
)

const testSigningKey = "test-signing-key"

type fakeReports struct {
	today time.Time
	err   error
	got   []time.Time
}

func (f *fakeReports) Get(_ context.Context, date time.Time) (*report.Report, error) {
	f.got = append(f.got, date)
	if f.err != nil && !errors.Is(f.err, report.ErrNoShifts) {
		return nil, f.err
	}
	key := date.Format(report.DateKeyLayout)
	return &report.Report{ID: "run-" + key, Date: key, Message: "report for " + key}, f.err
}

func (f *fakeReports) ParseDate(raw string) (time.Time, error) {
	for _, layout := range []string{report.ScheduleDateLayout, report.DateKeyLayout} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, errors.New("bad date")
}

func (f *fakeReports) Today() time.Time { return f.today }

type fakeHistory struct {
	date  string
	limit int
	runs  []models.ReportRun
}

func (f *fakeHistory) RecentRuns(_ context.Context, date string, limit int) ([]models.ReportRun, error) {
	f.date, f.limit = date, limit
	return f.runs, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []events.Payload
}

func (p *recordingPublisher) Publish(eventType events.EventType, payload events.Payload) {
	if eventType != events.EventRefreshRequested {
		return
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
}

func newTestServer(t *testing.T) (*Server, *fakeReports, *fakeHistory, *recordingPublisher) {
	t.Helper()
	reports := &fakeReports{today: time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)}
	history := &fakeHistory{runs: []models.ReportRun{{ID: "r1", Date: "2026-07-04", Trigger: models.TriggerSchedule}}}
	pub := &recordingPublisher{}
	s := &Server{
		cfg:       &config.Config{JWTSigningKey: testSigningKey, MetricsEnabled: true},
		logger:    zerolog.Nop(),
		router:    chi.NewRouter(),
		reports:   reports,
		history:   history,
		events:    pub,
		telegram:  notify.NewTelegram(config.TelegramConfig{TestChatID: "-200"}, http.DefaultClient, zerolog.Nop()),
		logBuffer: logbuffer.New(50),
	}
	s.configureRoutes()
	return s, reports, history, pub
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Issue([]byte(testSigningKey), "ops", []string{auth.RoleOperator}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func serve(s *Server, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestGroupMeCallback(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantDebug  *bool
	}{
		{"refresh prod", "/update/prod", `{"text":"refresh","name":"Alex","sender_type":"user"}`, http.StatusOK, ptr(false)},
		{"refresh dev mixed case", "/update/dev", `{"text":"  Refresh ","sender_type":"user"}`, http.StatusOK, ptr(true)},
		{"other text", "/update/prod", `{"text":"hello"}`, http.StatusNoContent, nil},
		{"bot echo", "/update/prod", `{"text":"refresh","sender_type":"bot"}`, http.StatusNoContent, nil},
		{"bad json", "/update/prod", `{"text":`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, pub := newTestServer(t)
			rr := serve(s, http.MethodPost, tt.path, tt.body, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantDebug == nil {
				if len(pub.payloads) != 0 {
					t.Fatalf("unexpected refresh requests: %v", pub.payloads)
				}
				return
			}
			if len(pub.payloads) != 1 {
				t.Fatalf("refresh requests = %d, want 1", len(pub.payloads))
			}
			p := pub.payloads[0]
			if p.String("source") != notify.ChannelGroupMe || p["debug"] != *tt.wantDebug {
				t.Fatalf("payload = %v", p)
			}
		})
	}
}

func TestTelegramWebhook(t *testing.T) {
	s, _, _, pub := newTestServer(t)

	for _, body := range []string{
		`{"update_id":1,"message":{"text":"refresh","chat":{"id":-100}}}`,
		`{"update_id":2,"message":{"text":"refresh","chat":{"id":-200}}}`,
		`{"update_id":3,"message":{"text":"thanks","chat":{"id":-100}}}`,
		`{"update_id":4}`,
		`not json`,
	} {
		if rr := serve(s, http.MethodPost, "/telegram/webhook", body, ""); rr.Code != http.StatusOK {
			t.Fatalf("status = %d for %s", rr.Code, body)
		}
	}

	if len(pub.payloads) != 2 {
		t.Fatalf("refresh requests = %v, want 2", pub.payloads)
	}
	if p := pub.payloads[0]; p.String("chat_id") != "-100" || p["debug"] != false || p.String("source") != notify.ChannelTelegram {
		t.Fatalf("first payload = %v", p)
	}
	if p := pub.payloads[1]; p.String("chat_id") != "-200" || p["debug"] != true {
		t.Fatalf("test chat payload = %v", p)
	}
}

func TestAPIRequiresOperatorToken(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	if rr := serve(s, http.MethodGet, "/api/day", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rr.Code)
	}

	viewer, err := auth.Issue([]byte(testSigningKey), "viewer", nil, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rr := serve(s, http.MethodGet, "/api/day", "", viewer); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer status = %d", rr.Code)
	}
}

func TestDayEndpoint(t *testing.T) {
	s, reports, _, _ := newTestServer(t)
	token := operatorToken(t)

	rr := serve(s, http.MethodGet, "/api/day", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var rep report.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Date != "2026-07-04" {
		t.Fatalf("default date = %q, want today", rep.Date)
	}

	rr = serve(s, http.MethodGet, "/api/day?date=12/24/2026", "", token)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "2026-12-24") {
		t.Fatalf("dated status = %d body=%s", rr.Code, rr.Body.String())
	}

	if rr := serve(s, http.MethodGet, "/api/day?date=christmas", "", token); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid date status = %d", rr.Code)
	}

	reports.err = report.ErrNoShifts
	if rr := serve(s, http.MethodGet, "/api/day", "", token); rr.Code != http.StatusOK {
		t.Fatalf("empty day status = %d", rr.Code)
	}

	reports.err = errors.New("w2w down")
	rr = serve(s, http.MethodGet, "/api/day", "", token)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "report_failed") {
		t.Fatalf("failure status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHistoryEndpoint(t *testing.T) {
	s, _, history, _ := newTestServer(t)
	token := operatorToken(t)

	rr := serve(s, http.MethodGet, "/api/history?date=07/04/2026&limit=500", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if history.date != "2026-07-04" || history.limit != maxHistoryLimit {
		t.Fatalf("query date=%q limit=%d", history.date, history.limit)
	}
	var body struct {
		Runs []models.ReportRun `json:"runs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body.Runs) != 1 {
		t.Fatalf("body = %s err=%v", rr.Body.String(), err)
	}

	if rr := serve(s, http.MethodGet, "/api/history?limit=-1", "", token); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	logger := zerolog.New(logbuffer.NewWriter(s.logBuffer, nil))
	logger.Debug().Str("component", "operday").Str("kind", "disqualified").Str("employee", "Drew").Msg("")
	logger.Info().Str("component", "w2w").Msg("session restored")

	rr := serve(s, http.MethodGet, "/api/diagnostics?component=operday", "", operatorToken(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Entries    []logbuffer.Entry `json:"entries"`
		Components []string          `json:"components"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || len(body.Components) != 2 {
		t.Fatalf("body = %s", rr.Body.String())
	}

	if rr := serve(s, http.MethodGet, "/api/diagnostics?since=yesterday", "", operatorToken(t)); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rr := serve(s, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["leader"]; ok {
		t.Fatal("leader reported without an election")
	}
}

func ptr(b bool) *bool { return &b }
