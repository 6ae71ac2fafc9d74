/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package archive keeps day snapshots in object storage for later review.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("archive object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New returns the store selected by cfg, or nil when archiving is off.
func New(ctx context.Context, cfg config.ArchiveConfig, logger zerolog.Logger) (ObjectStore, error) {
	logger = logger.With().Str("component", "archive").Logger()
	switch cfg.Backend {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveFS:
		store, err := NewFilesystemStore(cfg.Dir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.ArchiveS3:
		store, err := NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			Prefix:          cfg.S3Prefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// SnapshotKey names the object a report run is archived under.
func SnapshotKey(date, runID string) string {
	return path.Join("reports", date, runID+".json")
}
