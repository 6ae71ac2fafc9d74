package models

import "time"

// W2WSession persists an authenticated WhenToWork session so restarts do not
// force a fresh login.
type W2WSession struct {
	Account     string `gorm:"primaryKey;type:varchar(128)"`
	SessionID   string `gorm:"type:varchar(64)"`
	DLL         string `gorm:"type:varchar(64)"`
	CookiesJSON string `gorm:"type:text"`
	UpdatedAt   time.Time
}

// Valid reports whether the stored session carries both login tokens.
func (s W2WSession) Valid() bool {
	return s.SessionID != "" && s.DLL != ""
}
