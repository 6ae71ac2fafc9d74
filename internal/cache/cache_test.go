/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestEmptyAddressDisablesCache(t *testing.T) {
	c, err := New(Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	if c.IsAvailable() {
		t.Fatal("expected disabled cache")
	}
	if c.config.ReportTTL != DefaultReportTTL {
		t.Fatalf("ttl = %v", c.config.ReportTTL)
	}

	ctx := context.Background()
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-04", Message: "hi"}); err != nil {
		t.Fatalf("set on disabled cache: %v", err)
	}
	if _, ok := c.GetReport(ctx, "2026-07-04"); ok {
		t.Fatal("disabled cache must always miss")
	}
	if err := c.InvalidateReport(ctx, "2026-07-04"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestUnreachableRedisDisablesCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.ReportTTL = time.Minute

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()
	if c.IsAvailable() {
		t.Fatal("expected unreachable redis to disable the cache")
	}
}

func TestReportKey(t *testing.T) {
	if got := reportKey("2026-07-04"); got != "ridesbot:cache:report:2026-07-04" {
		t.Fatalf("key = %q", got)
	}
}

// memBackend is an in-memory stand-in for the Redis client. err, when set, fails every call.
type memBackend struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memBackend) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memBackend) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = string(value.([]byte))
	m.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memBackend) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memBackend) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, m.err)
}

func (m *memBackend) Close() error { return nil }

func TestReportRoundTrip(t *testing.T) {
	mem := newMemBackend()
	c := newCache(mem, Config{ReportTTL: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	if _, ok := c.GetReport(ctx, "2026-07-04"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-04", Message: "Manager on: Alex"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mem.ttl[KeyReport+"2026-07-04"] != time.Minute {
		t.Fatalf("ttl = %v", mem.ttl[KeyReport+"2026-07-04"])
	}
	got, ok := c.GetReport(ctx, "2026-07-04")
	if !ok || got.Message != "Manager on: Alex" {
		t.Fatalf("get = %+v, %v", got, ok)
	}

	mem.data["unrelated"] = "x"
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-05"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(mem.data) != 1 || mem.data["unrelated"] != "x" {
		t.Fatalf("flush left %v", mem.data)
	}
}

func TestBreakerPausesAndRecovers(t *testing.T) {
	mem := newMemBackend()
	c := newCache(mem, Config{DisableOnError: true, RetryAfter: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	mem.err = errors.New("connection reset")
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-04"}); err == nil {
		t.Fatal("expected set error")
	}
	if c.IsAvailable() {
		t.Fatal("breaker should be open after an error")
	}

	mem.err = nil
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-04"}); err != nil {
		t.Fatalf("set while paused: %v", err)
	}
	if len(mem.data) != 0 {
		t.Fatal("writes must be skipped while paused")
	}

	now = now.Add(time.Minute)
	if !c.IsAvailable() {
		t.Fatal("breaker should allow a retry after the pause")
	}
	if err := c.SetReport(ctx, &CachedReport{Date: "2026-07-04"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !c.trippedAt.IsZero() {
		t.Fatal("successful retry should close the breaker")
	}
}
