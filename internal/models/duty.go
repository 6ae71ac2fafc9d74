package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecord marks a duty record that violates the record contract.
var ErrInvalidRecord = errors.New("invalid duty record")

// Role enumerates the positions reported for an operating day.
type Role string

const (
	RoleManagerOn     Role = "managers_on"
	RoleSecondManager Role = "second_managers"
	RoleNorthCoord    Role = "north_coords"
	RoleSouthCoord    Role = "south_coords"
)

// Roles lists every reported role in presentation order.
var Roles = []Role{RoleManagerOn, RoleSecondManager, RoleNorthCoord, RoleSouthCoord}

// Label returns the message prefix used for the role.
func (r Role) Label() string {
	switch r {
	case RoleManagerOn:
		return "Manager on"
	case RoleSecondManager:
		return "Second manager"
	case RoleNorthCoord:
		return "North coord"
	case RoleSouthCoord:
		return "South coord"
	default:
		return string(r)
	}
}

// DutyRecord is one scraped assignment of an employee to a shift.
type DutyRecord struct {
	Employee    string    `json:"employee"`
	Start       TimeOfDay `json:"start_time"`
	End         TimeOfDay `json:"end_time"`
	TotalHours  float64   `json:"total_hours"`
	Description string    `json:"description"`
}

// Validate checks the fields every collaborator must supply.
func (d DutyRecord) Validate() error {
	if strings.TrimSpace(d.Employee) == "" {
		return fmt.Errorf("%w: missing employee name", ErrInvalidRecord)
	}
	if d.TotalHours < 0 {
		return fmt.Errorf("%w: negative total hours for %s", ErrInvalidRecord, d.Employee)
	}
	return nil
}

// Window returns the record's own shift window.
func (d DutyRecord) Window() Window {
	return Window{Start: d.Start, End: d.End}
}

func (d DutyRecord) String() string {
	return fmt.Sprintf("%s %s-%s %q", d.Employee, d.Start, d.End, d.Description)
}
