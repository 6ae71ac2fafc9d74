/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/ridesbot/internal/archive"
	"github.com/friendsincode/ridesbot/internal/cache"
	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/db"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/operday"
	"github.com/friendsincode/ridesbot/internal/poster"
	"github.com/friendsincode/ridesbot/internal/report"
	"github.com/friendsincode/ridesbot/internal/telemetry"
	"github.com/friendsincode/ridesbot/internal/w2w"
)

// Pipeline is the report pipeline shared by the server and the one-shot commands.
type Pipeline struct {
	DB         *gorm.DB
	Store      *db.Store
	Session    *w2w.Session
	Fetcher    w2w.Fetcher
	Reports    *report.Service
	Dispatcher *notify.Dispatcher
	Poster     *poster.Poster

	closers []func() error
}

// NewPipeline connects storage and wires the scrape, assemble, format and post chain.
// pub receives report events and may be nil.
func NewPipeline(ctx context.Context, cfg *config.Config, pub events.Publisher, logger zerolog.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		p.Close()
		return nil, err
	}
	p.DB = database
	p.Store = db.NewStore(database)

	session, err := w2w.NewSession(cfg.W2W, p.Store, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Session = session

	fetcher, err := w2w.NewFetcher(cfg.W2W.Fetcher, session, cfg.W2W.BrowserControlURL, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Fetcher = fetcher
	if c, ok := fetcher.(io.Closer); ok {
		p.closers = append(p.closers, c.Close)
	}

	store, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}

	classifier := classify.New()
	recorder := operday.MultiRecorder{operday.NewLogRecorder(logger), telemetry.EngineRecorder{}}
	loc := cfg.Location()

	deps := report.Deps{
		Fetcher:    fetcher,
		Filters:    cfg.W2W.Filters,
		Classifier: classifier,
		Assembler:  operday.NewAssembler(classifier, cfg.Scoring.Weights(), recorder),
		Formatter:  report.NewFormatter(loc),
		History:    p.Store,
		Archive:    store,
		Events:     pub,
		Location:   loc,
	}

	if cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		cacheCfg.ReportTTL = cfg.ReportTTL
		reportCache, err := cache.New(cacheCfg, logger)
		if err == nil && reportCache.IsAvailable() {
			deps.Cache = reportCache
			p.closers = append(p.closers, reportCache.Close)
		}
	}

	reports, err := report.NewService(deps, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Reports = reports
	p.Dispatcher = notify.NewDispatcher(cfg, logger)
	p.Poster = poster.New(reports, p.Dispatcher, pub, logger)

	return p, nil
}

// Close releases owned resources in reverse order.
func (p *Pipeline) Close() error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}
