package models

import "time"

// Report triggers.
const (
	TriggerSchedule = "schedule"
	TriggerRefresh  = "refresh"
	TriggerManual   = "manual"
)

// ReportRun records one built management report.
type ReportRun struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	Date           string `gorm:"type:varchar(10);index"`
	Trigger        string `gorm:"type:varchar(16)"`
	DetectedShifts int
	ErrorCount     int
	Message        string `gorm:"type:text"`
	DayJSON        string `gorm:"type:text"`
	ArchiveKey     string `gorm:"type:varchar(255)"`
	CreatedAt      time.Time `gorm:"index"`
}
