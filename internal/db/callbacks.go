/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/ridesbot/internal/telemetry"
)

const startedKey = "ridesbot:started_at"

// RegisterCallbacks times every query, create, update and delete, and counts failures.
func RegisterCallbacks(database *gorm.DB) error {
	cb := database.Callback()
	err := errors.Join(
		cb.Query().Before("gorm:query").Register("metrics:start_query", markStart),
		cb.Query().After("gorm:query").Register("metrics:observe_query", observe("query")),
		cb.Create().Before("gorm:create").Register("metrics:start_create", markStart),
		cb.Create().After("gorm:create").Register("metrics:observe_create", observe("create")),
		cb.Update().Before("gorm:update").Register("metrics:start_update", markStart),
		cb.Update().After("gorm:update").Register("metrics:observe_update", observe("update")),
		cb.Delete().Before("gorm:delete").Register("metrics:start_delete", markStart),
		cb.Delete().After("gorm:delete").Register("metrics:observe_delete", observe("delete")),
	)
	if err != nil {
		return fmt.Errorf("register metrics callbacks: %w", err)
	}
	return nil
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startedKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startedKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := tx.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if kind := errorKind(tx.Error); kind != "" {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, kind).Inc()
		}
	}
}

// errorKind labels err for the error counter. Missing rows are not failures.
func errorKind(err error) string {
	switch {
	case err == nil, errors.Is(err, gorm.ErrRecordNotFound):
		return ""
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "duplicate"
	default:
		return "query_error"
	}
}

// UpdateConnectionMetrics publishes the pool's open connection count.
func UpdateConnectionMetrics(database *gorm.DB) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
