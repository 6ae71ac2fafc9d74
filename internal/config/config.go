/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/ridesbot/internal/operday"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Schedule fetcher selection.
const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Archive backend selection.
const (
	ArchiveNone = "none"
	ArchiveFS   = "fs"
	ArchiveS3   = "s3"
)

// Filter labels the report pipeline groups records by.
const (
	FilterManagers   = "managers"
	FilterAssistants = "assistants"
	FilterCoords     = "coords"
)

// W2WConfig describes the WhenToWork account and the skill filters to scrape.
type W2WConfig struct {
	BaseURL           string            `yaml:"base_url"`
	LoginURL          string            `yaml:"login_url"`
	Username          string            `yaml:"username"`
	Password          string            `yaml:"password"`
	Filters           map[string]string `yaml:"filters"`
	Fetcher           string            `yaml:"fetcher"`
	BrowserControlURL string            `yaml:"browser_control_url"`
	Timeout           time.Duration     `yaml:"timeout"`
}

// ScoringConfig exposes the slot scoring weights as configuration.
type ScoringConfig struct {
	MatchBonus      int `yaml:"match_bonus"`
	HourPenalty     int `yaml:"hour_penalty"`
	SingleSlotScore int `yaml:"single_slot_score"`
	ToleranceHours  int `yaml:"tolerance_hours"`
	AMCutoffHour    int `yaml:"am_cutoff_hour"`
	EndCutoffHour   int `yaml:"end_cutoff_hour"`
	DisqualifyAt    int `yaml:"disqualify_at"`
}

// Weights converts the scoring configuration for the engine.
func (s ScoringConfig) Weights() operday.Weights {
	return operday.Weights{
		MatchBonus:      s.MatchBonus,
		HourPenalty:     s.HourPenalty,
		SingleSlotScore: s.SingleSlotScore,
		ToleranceHours:  s.ToleranceHours,
		AMCutoffHour:    s.AMCutoffHour,
		EndCutoffHour:   s.EndCutoffHour,
		DisqualifyAt:    s.DisqualifyAt,
	}
}

// GroupMeConfig holds the bot ids messages are posted with.
type GroupMeConfig struct {
	APIURL    string `yaml:"api_url"`
	BotID     string `yaml:"bot_id"`
	DevBotID  string `yaml:"dev_bot_id"`
	A910BotID string `yaml:"a910_bot_id"`
}

// DiscordConfig holds the bot token and channels.
type DiscordConfig struct {
	APIURL         string `yaml:"api_url"`
	GatewayURL     string `yaml:"gateway_url"`
	BotToken       string `yaml:"bot_token"`
	MainChannelID  string `yaml:"main_channel_id"`
	TestChannelID  string `yaml:"test_channel_id"`
	GatewayEnabled bool   `yaml:"gateway_enabled"`
}

// TelegramConfig holds the bot token and chats.
type TelegramConfig struct {
	APIURL     string `yaml:"api_url"`
	Token      string `yaml:"token"`
	MainChatID string `yaml:"main_chat_id"`
	TestChatID string `yaml:"test_chat_id"`
}

// ArchiveConfig selects where day snapshots are archived.
type ArchiveConfig struct {
	Backend           string `yaml:"backend"`
	Dir               string `yaml:"dir"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3UsePathStyle    bool   `yaml:"s3_use_path_style"`
	S3Prefix          string `yaml:"s3_prefix"`
}

// Config covers process level configuration read from an optional YAML file and
// environment variables. Environment variables win over the file.
type Config struct {
	Environment    string          `yaml:"environment"`
	HTTPBind       string          `yaml:"http_bind"`
	HTTPPort       int             `yaml:"http_port"`
	MetricsEnabled bool            `yaml:"metrics_enabled"`
	DBBackend      DatabaseBackend `yaml:"db_backend"`
	DBDSN          string          `yaml:"db_dsn"`
	JWTSigningKey  string          `yaml:"jwt_signing_key"`
	Timezone       string          `yaml:"timezone"`
	DailyPostTime  string          `yaml:"daily_post_time"` // "HH:MM", empty disables the daily post

	W2W      W2WConfig      `yaml:"whentowork"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	GroupMe  GroupMeConfig  `yaml:"groupme"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
	Archive  ArchiveConfig  `yaml:"archive"`

	// Report cache and multi-instance configuration
	RedisAddr             string        `yaml:"redis_addr"`
	RedisPassword         string        `yaml:"redis_password"`
	RedisDB               int           `yaml:"redis_db"`
	ReportTTL             time.Duration `yaml:"report_ttl"`
	LeaderElectionEnabled bool          `yaml:"leader_election_enabled"`
	InstanceID            string        `yaml:"instance_id"`

	// Cross-instance events. NATSSubject is the subject prefix; the event type is appended.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`

	// File is the YAML file the configuration was overlaid from, if any.
	File string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	w := operday.DefaultWeights()
	return &Config{
		Environment:    "development",
		HTTPBind:       "0.0.0.0",
		HTTPPort:       7045,
		MetricsEnabled: true,
		DBBackend:      DatabaseSQLite,
		DBDSN:          "ridesbot.db",
		Timezone:       "Local",

		W2W: W2WConfig{
			BaseURL:  "https://www3.whentowork.com/cgi-bin/",
			LoginURL: "https://whentowork.com/cgi-bin/w2w.dll/login",
			Filters:  map[string]string{},
			Fetcher:  FetcherHTTP,
			Timeout:  30 * time.Second,
		},
		Scoring: ScoringConfig{
			MatchBonus:      w.MatchBonus,
			HourPenalty:     w.HourPenalty,
			SingleSlotScore: w.SingleSlotScore,
			ToleranceHours:  w.ToleranceHours,
			AMCutoffHour:    w.AMCutoffHour,
			EndCutoffHour:   w.EndCutoffHour,
			DisqualifyAt:    w.DisqualifyAt,
		},
		GroupMe:  GroupMeConfig{APIURL: "https://api.groupme.com/v3"},
		Discord:  DiscordConfig{APIURL: "https://discord.com/api/v10", GatewayURL: "wss://gateway.discord.gg/?v=10&encoding=json"},
		Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		Archive:  ArchiveConfig{Backend: ArchiveNone, Dir: "./archive", S3Region: "us-east-1"},

		RedisAddr:   "",
		ReportTTL:   10 * time.Minute,
		NATSSubject: "ridesbot.events",

		OTLPEndpoint:      "localhost:4317",
		TracingSampleRate: 1.0,
	}
}

// Load reads the optional YAML file named by RIDESBOT_CONFIG_FILE, applies environment
// variables on top, and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := getEnvAny([]string{"RIDESBOT_CONFIG_FILE", "RIDESBOT_CONFIG"}, ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if c.W2W.Filters == nil {
		c.W2W.Filters = map[string]string{}
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnvAny([]string{"RIDESBOT_ENV"}, c.Environment)
	c.HTTPBind = getEnvAny([]string{"RIDESBOT_HTTP_BIND"}, c.HTTPBind)
	c.HTTPPort = getEnvIntAny([]string{"RIDESBOT_HTTP_PORT", "PORT"}, c.HTTPPort)
	c.MetricsEnabled = getEnvBoolAny([]string{"RIDESBOT_METRICS_ENABLED"}, c.MetricsEnabled)
	c.DBBackend = DatabaseBackend(getEnvAny([]string{"RIDESBOT_DB_BACKEND"}, string(c.DBBackend)))
	c.DBDSN = getEnvAny([]string{"RIDESBOT_DB_DSN"}, c.DBDSN)
	c.JWTSigningKey = getEnvAny([]string{"RIDESBOT_JWT_SIGNING_KEY"}, c.JWTSigningKey)
	c.Timezone = getEnvAny([]string{"RIDESBOT_TIMEZONE", "TZ"}, c.Timezone)
	c.DailyPostTime = getEnvAny([]string{"RIDESBOT_DAILY_POST_TIME"}, c.DailyPostTime)

	// WhenToWork
	c.W2W.BaseURL = getEnvAny([]string{"RIDESBOT_W2W_BASE_URL"}, c.W2W.BaseURL)
	c.W2W.LoginURL = getEnvAny([]string{"RIDESBOT_W2W_LOGIN_URL"}, c.W2W.LoginURL)
	c.W2W.Username = getEnvAny([]string{"RIDESBOT_W2W_USERNAME", "W2W_USERNAME"}, c.W2W.Username)
	c.W2W.Password = getEnvAny([]string{"RIDESBOT_W2W_PASSWORD", "W2W_PASSWORD"}, c.W2W.Password)
	c.W2W.Fetcher = getEnvAny([]string{"RIDESBOT_W2W_FETCHER"}, c.W2W.Fetcher)
	c.W2W.BrowserControlURL = getEnvAny([]string{"RIDESBOT_W2W_BROWSER_URL"}, c.W2W.BrowserControlURL)
	c.W2W.Timeout = time.Duration(getEnvIntAny([]string{"RIDESBOT_W2W_TIMEOUT_SECONDS"}, int(c.W2W.Timeout/time.Second))) * time.Second
	if raw := getEnvAny([]string{"RIDESBOT_W2W_FILTERS"}, ""); raw != "" {
		c.W2W.Filters = parseFilters(raw)
	}

	// Scoring weights
	c.Scoring.MatchBonus = getEnvIntAny([]string{"RIDESBOT_SCORE_MATCH_BONUS"}, c.Scoring.MatchBonus)
	c.Scoring.HourPenalty = getEnvIntAny([]string{"RIDESBOT_SCORE_HOUR_PENALTY"}, c.Scoring.HourPenalty)
	c.Scoring.SingleSlotScore = getEnvIntAny([]string{"RIDESBOT_SCORE_SINGLE_SLOT"}, c.Scoring.SingleSlotScore)
	c.Scoring.ToleranceHours = getEnvIntAny([]string{"RIDESBOT_SCORE_TOLERANCE_HOURS"}, c.Scoring.ToleranceHours)
	c.Scoring.AMCutoffHour = getEnvIntAny([]string{"RIDESBOT_SCORE_AM_CUTOFF_HOUR"}, c.Scoring.AMCutoffHour)
	c.Scoring.EndCutoffHour = getEnvIntAny([]string{"RIDESBOT_SCORE_END_CUTOFF_HOUR"}, c.Scoring.EndCutoffHour)
	c.Scoring.DisqualifyAt = getEnvIntAny([]string{"RIDESBOT_SCORE_DISQUALIFY_AT"}, c.Scoring.DisqualifyAt)

	// Chat platforms
	c.GroupMe.APIURL = getEnvAny([]string{"RIDESBOT_GROUPME_API_URL"}, c.GroupMe.APIURL)
	c.GroupMe.BotID = getEnvAny([]string{"RIDESBOT_GROUPME_BOT_ID", "GROUPME_BOT_ID"}, c.GroupMe.BotID)
	c.GroupMe.DevBotID = getEnvAny([]string{"RIDESBOT_GROUPME_DEV_BOT_ID"}, c.GroupMe.DevBotID)
	c.GroupMe.A910BotID = getEnvAny([]string{"RIDESBOT_GROUPME_A910_BOT_ID"}, c.GroupMe.A910BotID)
	c.Discord.APIURL = getEnvAny([]string{"RIDESBOT_DISCORD_API_URL"}, c.Discord.APIURL)
	c.Discord.GatewayURL = getEnvAny([]string{"RIDESBOT_DISCORD_GATEWAY_URL"}, c.Discord.GatewayURL)
	c.Discord.BotToken = getEnvAny([]string{"RIDESBOT_DISCORD_BOT_TOKEN", "DISCORD_BOT_TOKEN"}, c.Discord.BotToken)
	c.Discord.MainChannelID = getEnvAny([]string{"RIDESBOT_DISCORD_MAIN_CHANNEL_ID"}, c.Discord.MainChannelID)
	c.Discord.TestChannelID = getEnvAny([]string{"RIDESBOT_DISCORD_TEST_CHANNEL_ID"}, c.Discord.TestChannelID)
	c.Discord.GatewayEnabled = getEnvBoolAny([]string{"RIDESBOT_DISCORD_GATEWAY_ENABLED"}, c.Discord.GatewayEnabled)
	c.Telegram.APIURL = getEnvAny([]string{"RIDESBOT_TELEGRAM_API_URL"}, c.Telegram.APIURL)
	c.Telegram.Token = getEnvAny([]string{"RIDESBOT_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"}, c.Telegram.Token)
	c.Telegram.MainChatID = getEnvAny([]string{"RIDESBOT_TELEGRAM_MAIN_CHAT_ID"}, c.Telegram.MainChatID)
	c.Telegram.TestChatID = getEnvAny([]string{"RIDESBOT_TELEGRAM_TEST_CHAT_ID"}, c.Telegram.TestChatID)

	// Archive
	c.Archive.Backend = getEnvAny([]string{"RIDESBOT_ARCHIVE_BACKEND"}, c.Archive.Backend)
	c.Archive.Dir = getEnvAny([]string{"RIDESBOT_ARCHIVE_DIR"}, c.Archive.Dir)
	c.Archive.S3Bucket = getEnvAny([]string{"RIDESBOT_S3_BUCKET", "S3_BUCKET"}, c.Archive.S3Bucket)
	c.Archive.S3Region = getEnvAny([]string{"RIDESBOT_S3_REGION", "AWS_REGION"}, c.Archive.S3Region)
	c.Archive.S3Endpoint = getEnvAny([]string{"RIDESBOT_S3_ENDPOINT", "S3_ENDPOINT"}, c.Archive.S3Endpoint)
	c.Archive.S3AccessKeyID = getEnvAny([]string{"RIDESBOT_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, c.Archive.S3AccessKeyID)
	c.Archive.S3SecretAccessKey = getEnvAny([]string{"RIDESBOT_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, c.Archive.S3SecretAccessKey)
	c.Archive.S3UsePathStyle = getEnvBoolAny([]string{"RIDESBOT_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, c.Archive.S3UsePathStyle)
	c.Archive.S3Prefix = getEnvAny([]string{"RIDESBOT_S3_PREFIX"}, c.Archive.S3Prefix)

	// Redis, leadership, events
	c.RedisAddr = getEnvAny([]string{"RIDESBOT_REDIS_ADDR"}, c.RedisAddr)
	c.RedisPassword = getEnvAny([]string{"RIDESBOT_REDIS_PASSWORD"}, c.RedisPassword)
	c.RedisDB = getEnvIntAny([]string{"RIDESBOT_REDIS_DB"}, c.RedisDB)
	c.ReportTTL = time.Duration(getEnvIntAny([]string{"RIDESBOT_REPORT_TTL_SECONDS"}, int(c.ReportTTL/time.Second))) * time.Second
	c.LeaderElectionEnabled = getEnvBoolAny([]string{"RIDESBOT_LEADER_ELECTION_ENABLED"}, c.LeaderElectionEnabled)
	c.InstanceID = getEnvAny([]string{"RIDESBOT_INSTANCE_ID"}, c.InstanceID)
	c.NATSURL = getEnvAny([]string{"RIDESBOT_NATS_URL", "NATS_URL"}, c.NATSURL)
	c.NATSSubject = getEnvAny([]string{"RIDESBOT_NATS_SUBJECT"}, c.NATSSubject)

	// Tracing
	c.TracingEnabled = getEnvBoolAny([]string{"RIDESBOT_TRACING_ENABLED"}, c.TracingEnabled)
	c.OTLPEndpoint = getEnvAny([]string{"RIDESBOT_OTLP_ENDPOINT"}, c.OTLPEndpoint)
	c.TracingSampleRate = getEnvFloatAny([]string{"RIDESBOT_TRACING_SAMPLE_RATE"}, c.TracingSampleRate)
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("RIDESBOT_DB_DSN must be provided")
	}
	if c.W2W.Fetcher != FetcherHTTP && c.W2W.Fetcher != FetcherBrowser {
		return fmt.Errorf("unsupported schedule fetcher %q", c.W2W.Fetcher)
	}

	switch c.Archive.Backend {
	case "", ArchiveNone:
	case ArchiveFS:
		if c.Archive.Dir == "" {
			return fmt.Errorf("RIDESBOT_ARCHIVE_DIR must be provided for the fs archive")
		}
	case ArchiveS3:
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("RIDESBOT_S3_BUCKET must be provided for the s3 archive")
		}
	default:
		return fmt.Errorf("unsupported archive backend %q", c.Archive.Backend)
	}

	if c.Scoring.MatchBonus <= 0 || c.Scoring.HourPenalty < 0 || c.Scoring.ToleranceHours < 0 {
		return fmt.Errorf("invalid scoring weights: match bonus must be positive, penalty and tolerance non-negative")
	}
	if c.Scoring.DisqualifyAt >= c.Scoring.MatchBonus {
		return fmt.Errorf("disqualification threshold %d must be below the match bonus %d", c.Scoring.DisqualifyAt, c.Scoring.MatchBonus)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.DailyPostTime != "" {
		if _, err := time.Parse("15:04", c.DailyPostTime); err != nil {
			return fmt.Errorf("RIDESBOT_DAILY_POST_TIME must be HH:MM: %w", err)
		}
	}

	if c.LeaderElectionEnabled && c.RedisAddr == "" {
		return fmt.Errorf("RIDESBOT_REDIS_ADDR must be provided when leader election is enabled")
	}

	if strings.EqualFold(c.Environment, "production") {
		if c.JWTSigningKey == "" {
			return fmt.Errorf("RIDESBOT_JWT_SIGNING_KEY must be provided in production")
		}
		if c.W2W.Username == "" || c.W2W.Password == "" {
			return fmt.Errorf("RIDESBOT_W2W_USERNAME and RIDESBOT_W2W_PASSWORD are required in production")
		}
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FilterLabels returns the configured skill filter labels in a stable order.
func (c *Config) FilterLabels() []string {
	labels := make([]string, 0, len(c.W2W.Filters))
	for label := range c.W2W.Filters {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// parseFilters reads "managers=123,assistants=456" into a label map.
func parseFilters(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		label, id, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(label) == "" {
			continue
		}
		out[strings.TrimSpace(label)] = strings.TrimSpace(id)
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
