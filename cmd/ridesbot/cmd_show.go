/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/report"
	"github.com/friendsincode/ridesbot/internal/server"
)

var showDate string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the assembled day model as JSON",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showDate, "date", "", "Day to show as MM/DD/YYYY (default today)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	pipeline, err := server.NewPipeline(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer pipeline.Close()

	date, err := dateFlag(pipeline.Reports, showDate)
	if err != nil {
		return err
	}

	rep, err := pipeline.Reports.Build(cmd.Context(), date, models.TriggerManual)
	if err != nil && !errors.Is(err, report.ErrNoShifts) {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep.Day)
}
