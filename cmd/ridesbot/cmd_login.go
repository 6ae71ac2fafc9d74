/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/ridesbot/internal/server"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to WhenToWork and store the session",
	Long:  "Sign in with the configured WhenToWork account and store the session for later runs. No schedule is fetched.",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	pipeline, err := server.NewPipeline(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer pipeline.Close()

	if err := pipeline.Session.Login(cmd.Context(), "manual"); err != nil {
		return err
	}
	logger.Info().Str("account", cfg.W2W.Username).Msg("session stored")
	return nil
}
