/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
)

type capturedRequest struct {
	Path   string
	Auth   string
	Fields map[string]string
}

type chatAPI struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func (c *chatAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	_ = json.NewDecoder(r.Body).Decode(&fields)

	c.mu.Lock()
	c.requests = append(c.requests, capturedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Fields: fields})
	status := c.status
	c.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{}`))
}

func (c *chatAPI) byPath(path string) []capturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedRequest
	for _, r := range c.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func newTestDispatcher(t *testing.T, api *chatAPI) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.GroupMe = config.GroupMeConfig{APIURL: srv.URL + "/v3", BotID: "main-bot", DevBotID: "dev-bot", A910BotID: "a910-bot"}
	cfg.Discord = config.DiscordConfig{APIURL: srv.URL + "/api/", BotToken: "tok", MainChannelID: "111", TestChannelID: "222"}
	cfg.Telegram = config.TelegramConfig{APIURL: srv.URL, Token: "T0K", MainChatID: "-100", TestChatID: "-200"}
	return NewDispatcher(cfg, zerolog.Nop())
}

func TestDispatcherSendsToSelectedTargets(t *testing.T) {
	api := &chatAPI{}
	d := newTestDispatcher(t, api)

	msg := Message{Text: "Manager on: Alex\nSecond manager: Casey", Discord: "Manager on: Alex"}
	err := d.Send(context.Background(), msg, Targets{GroupMeDev: true, Discord: true, TelegramDebug: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	gm := api.byPath("/v3/bots/post")
	if len(gm) != 1 || gm[0].Fields["bot_id"] != "dev-bot" || gm[0].Fields["text"] != msg.Text {
		t.Fatalf("groupme requests = %+v", gm)
	}

	dc := api.byPath("/api/channels/111/messages")
	if len(dc) != 1 || dc[0].Auth != "Bot tok" || dc[0].Fields["content"] != msg.Discord {
		t.Fatalf("discord requests = %+v", dc)
	}

	tg := api.byPath("/botT0K/sendMessage")
	if len(tg) != 1 || tg[0].Fields["chat_id"] != "-200" || tg[0].Fields["text"] != msg.Text {
		t.Fatalf("telegram requests = %+v", tg)
	}
}

func TestDispatcherDiscordFallsBackToText(t *testing.T) {
	api := &chatAPI{}
	d := newTestDispatcher(t, api)

	if err := d.Send(context.Background(), Message{Text: "hello"}, Targets{DiscordDebug: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	dc := api.byPath("/api/channels/222/messages")
	if len(dc) != 1 || dc[0].Fields["content"] != "hello" {
		t.Fatalf("discord requests = %+v", dc)
	}
}

func TestDispatcherJoinsFailures(t *testing.T) {
	api := &chatAPI{status: http.StatusBadGateway}
	d := newTestDispatcher(t, api)
	d.Telegram.cfg.Token = ""

	err := d.Send(context.Background(), Message{Text: "x"}, Targets{GroupMe: true, Telegram: true})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured among failures", err)
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("err = %v, want the groupme status", err)
	}
	if len(api.byPath("/v3/bots/post")) != 1 {
		t.Fatal("groupme should still have been attempted")
	}
}

func TestTargetsAny(t *testing.T) {
	if (Targets{}).Any() {
		t.Fatal("empty targets should select nothing")
	}
	if !(Targets{TelegramChatID: "42"}).Any() {
		t.Fatal("a reply chat is a target")
	}
}

func TestGroupMeRequiresBotID(t *testing.T) {
	g := NewGroupMe(config.GroupMeConfig{APIURL: "http://127.0.0.1:1"}, http.DefaultClient, zerolog.Nop())
	if err := g.Post(context.Background(), "", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
