/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/report"
	"github.com/friendsincode/ridesbot/internal/server"
)

var (
	postDate    string
	postMessage string
	postTargets notify.Targets
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Build the day's roster and post it",
	Long: `Build the management roster for a day and post it to the selected chats.

Without any destination flag the roster is built and recorded but not sent.

Examples:
  # Post today's roster to the main GroupMe and Discord channels
  ridesbot post --groupme --discord

  # Preview a future day in the dev group and print what was sent
  ridesbot post --date 07/04/2026 --gm-debug --debug

  # Send a one-off announcement instead of the roster
  ridesbot post --telegram --message "No rides tonight"
`,
	RunE: runPost,
}

func init() {
	postCmd.Flags().StringVar(&postDate, "date", "", "Day to report as MM/DD/YYYY (default today)")
	postCmd.Flags().StringVar(&postMessage, "message", "", "Send this text instead of the roster")
	postCmd.Flags().BoolVar(&postTargets.GroupMe, "groupme", false, "Post to the main GroupMe group")
	postCmd.Flags().BoolVar(&postTargets.GroupMeDev, "gm-debug", false, "Post to the GroupMe dev group")
	postCmd.Flags().BoolVar(&postTargets.GroupMeA910, "gm-a910", false, "Post to the A910 GroupMe group")
	postCmd.Flags().BoolVar(&postTargets.Discord, "discord", false, "Post to the main Discord channel")
	postCmd.Flags().BoolVar(&postTargets.DiscordDebug, "discord-debug", false, "Post to the Discord test channel")
	postCmd.Flags().BoolVar(&postTargets.Telegram, "telegram", false, "Post to the main Telegram chat")
	postCmd.Flags().BoolVar(&postTargets.TelegramDebug, "telegram-debug", false, "Post to the Telegram test chat")
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	pipeline, err := server.NewPipeline(ctx, cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer pipeline.Close()

	if postMessage != "" {
		if !postTargets.Any() {
			return errors.New("--message needs at least one destination flag")
		}
		if debug {
			fmt.Println(postMessage)
		}
		return pipeline.Dispatcher.Send(ctx, notify.Message{Text: postMessage}, postTargets)
	}

	date, err := dateFlag(pipeline.Reports, postDate)
	if err != nil {
		return err
	}

	rep, err := pipeline.Poster.Post(ctx, date, postTargets, models.TriggerManual)
	if rep != nil && (debug || !postTargets.Any()) {
		fmt.Println(rep.Message)
		if debug && rep.DiscordMessage != "" {
			fmt.Println()
			fmt.Println(rep.DiscordMessage)
		}
	}
	return err
}

// dateFlag parses raw, or returns today in the roster's timezone when raw is empty.
func dateFlag(reports *report.Service, raw string) (time.Time, error) {
	if raw == "" {
		return reports.Today(), nil
	}
	return reports.ParseDate(raw)
}
