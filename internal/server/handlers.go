/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/logbuffer"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/report"
	"github.com/friendsincode/ridesbot/internal/version"
)

const (
	refreshCommand = "refresh"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxCallbackBytes    = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func isRefresh(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), refreshCommand)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Version,
	}
	if s.election != nil {
		resp["leader"] = s.election.IsLeader()
	}
	if s.updates != nil {
		if info := s.updates.Info(); info.UpdateAvailable {
			resp["latest_version"] = info.LatestVersion
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// groupMeCallback is the part of a GroupMe bot callback the bot reads.
type groupMeCallback struct {
	Text       string `json:"text"`
	Name       string `json:"name"`
	SenderType string `json:"sender_type"`
}

// handleGroupMeCallback answers the GroupMe bot callback. debug selects the dev group.
func (s *Server) handleGroupMeCallback(debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg groupMeCallback
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallbackBytes)).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if msg.SenderType == "bot" || !isRefresh(msg.Text) {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		s.logger.Info().Str("sender", msg.Name).Bool("debug", debug).Msg("groupme refresh requested")
		s.events.Publish(events.EventRefreshRequested, events.Payload{
			"source": notify.ChannelGroupMe,
			"debug":  debug,
		})
		w.WriteHeader(http.StatusOK)
	}
}

// handleTelegramWebhook always answers 200 so Telegram does not redeliver the update.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update notify.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallbackBytes)).Decode(&update); err != nil {
		s.logger.Debug().Err(err).Msg("ignoring unreadable telegram update")
		w.WriteHeader(http.StatusOK)
		return
	}
	if update.Message == nil || !isRefresh(update.Message.Text) {
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	debug := s.telegram != nil && s.telegram.IsTestChat(chatID)
	s.logger.Info().Str("chat_id", chatID).Bool("debug", debug).Msg("telegram refresh requested")
	s.events.Publish(events.EventRefreshRequested, events.Payload{
		"source":  notify.ChannelTelegram,
		"chat_id": chatID,
		"debug":   debug,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := s.reports.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := s.reports.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		date = parsed
	}

	rep, err := s.reports.Get(r.Context(), date)
	if err != nil && !errors.Is(err, report.ErrNoShifts) {
		s.logger.Error().Err(err).Str("date", date.Format(report.DateKeyLayout)).Msg("build report failed")
		writeError(w, http.StatusBadGateway, "report_failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var date string
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := s.reports.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		date = parsed.Format(report.DateKeyLayout)
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.history.RecentRuns(r.Context(), date, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list report runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnostics_disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Kind:       q.Get("kind"),
		Employee:   q.Get("employee"),
		Search:     q.Get("search"),
		Descending: q.Get("order") != "asc",
		Limit:      100,
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    s.logBuffer.Query(params),
		"components": s.logBuffer.Components(),
		"stats":      s.logBuffer.Stats(),
	})
}
