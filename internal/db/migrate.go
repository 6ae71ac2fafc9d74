/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/ridesbot/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.W2WSession{},
		&models.ReportRun{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := dropEmptySessions(database); err != nil {
		return err
	}
	return nil
}

// dropEmptySessions removes rows left behind by logins that never yielded a SID.
func dropEmptySessions(database *gorm.DB) error {
	if err := database.
		Where("session_id = '' OR dll = ''").
		Delete(&models.W2WSession{}).Error; err != nil {
		return fmt.Errorf("drop empty sessions: %w", err)
	}
	return nil
}
