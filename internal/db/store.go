/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/ridesbot/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store persists W2W sessions and report history.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LoadSession returns the saved session for account.
func (s *Store) LoadSession(ctx context.Context, account string) (models.W2WSession, error) {
	var sess models.W2WSession
	err := s.db.WithContext(ctx).Where("account = ?", account).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.W2WSession{}, ErrNotFound
	}
	if err != nil {
		return models.W2WSession{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// SaveSession upserts the session for its account.
func (s *Store) SaveSession(ctx context.Context, sess models.W2WSession) error {
	if sess.Account == "" {
		return errors.New("save session: account required")
	}
	sess.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "dll", "cookies_json", "updated_at"}),
	}).Create(&sess).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession forgets the session for account.
func (s *Store) DeleteSession(ctx context.Context, account string) error {
	if err := s.db.WithContext(ctx).Where("account = ?", account).Delete(&models.W2WSession{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SaveRun inserts a report run, assigning an ID when missing.
func (s *Store) SaveRun(ctx context.Context, run *models.ReportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("save report run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first. An empty date matches all days.
func (s *Store) RecentRuns(ctx context.Context, date string, limit int) ([]models.ReportRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if date != "" {
		q = q.Where("date = ?", date)
	}
	var runs []models.ReportRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the newest run for date.
func (s *Store) LatestRun(ctx context.Context, date string) (models.ReportRun, error) {
	var run models.ReportRun
	err := s.db.WithContext(ctx).Where("date = ?", date).Order("created_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ReportRun{}, ErrNotFound
	}
	if err != nil {
		return models.ReportRun{}, fmt.Errorf("latest report run: %w", err)
	}
	return run, nil
}

// PruneRuns deletes runs created before cutoff and returns how many were removed.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ReportRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune report runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
