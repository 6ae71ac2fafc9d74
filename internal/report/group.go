/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/operday"
)

// roleSources lists the W2W filters each role is drawn from.
var roleSources = map[models.Role][]string{
	models.RoleManagerOn:     {config.FilterManagers, config.FilterAssistants},
	models.RoleSecondManager: {config.FilterManagers, config.FilterAssistants},
	models.RoleNorthCoord:    {config.FilterCoords, config.FilterAssistants},
	models.RoleSouthCoord:    {config.FilterCoords, config.FilterAssistants},
}

// Group selects, per role, the scraped records whose description qualifies them.
func Group(byFilter map[string][]models.DutyRecord, classifier *classify.Classifier) operday.Filtered {
	filtered := operday.Filtered{}
	for _, role := range models.Roles {
		for _, label := range roleSources[role] {
			for _, rec := range byFilter[label] {
				if classifier.Matches(role, rec) {
					filtered.Add(role, rec)
				}
			}
		}
	}
	return filtered
}
