package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// --- Config Types ---

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Sheets   SheetsConfig   `json:"sheets"`
	Store    StoreConfig    `json:"store,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Timezone string         `json:"timezone,omitempty"` // IANA name, default Asia/Kolkata

	// Resolved at runtime (not serialized).
	baseDir string
	loc     *time.Location
}

type TelegramConfig struct {
	BotToken    string `json:"botToken"`
	GroupChatID int64  `json:"groupChatId"`
	PollTimeout int    `json:"pollTimeout,omitempty"` // long-poll seconds, default 30
}

type SheetsConfig struct {
	SpreadsheetID   string `json:"spreadsheetId"`
	CredentialsFile string `json:"credentialsFile,omitempty"` // service-account JSON key
}

// StoreConfig selects the row-store backend. "sheets" talks to the Google
// spreadsheet; "sqlite" keeps the same three tables in a local file so the
// bot can run without Google credentials.
type StoreConfig struct {
	Backend string `json:"backend,omitempty"` // "sheets" (default) or "sqlite"
	Path    string `json:"path,omitempty"`    // sqlite db path, default internbot.db
}

// ScheduleConfig holds the four daily trigger times as local HH:MM.
type ScheduleConfig struct {
	PlanningTime string `json:"planningTime,omitempty"` // default 10:00
	NudgeTime    string `json:"nudgeTime,omitempty"`    // default 11:00
	MiddayTime   string `json:"middayTime,omitempty"`   // default 15:00
	EODTime      string `json:"eodTime,omitempty"`      // default 19:00
}

type LoggingConfig struct {
	Level     string `json:"level,omitempty"`     // debug|info|warn|error
	Format    string `json:"format,omitempty"`    // text|json
	File      string `json:"file,omitempty"`      // default <baseDir>/logs/internbot.log
	MaxSizeMB int    `json:"maxSizeMB,omitempty"` // rotation threshold, default 50
	MaxFiles  int    `json:"maxFiles,omitempty"`  // rotated files kept, default 5
}

// --- Defaults ---

func (c TelegramConfig) pollTimeoutOrDefault() int {
	if c.PollTimeout > 0 {
		return c.PollTimeout
	}
	return 30
}

func (c StoreConfig) backendOrDefault() string {
	if c.Backend != "" {
		return c.Backend
	}
	return "sheets"
}

func (c StoreConfig) pathOrDefault() string {
	if c.Path != "" {
		return c.Path
	}
	return "internbot.db"
}

func (c ScheduleConfig) planningOrDefault() string {
	if c.PlanningTime != "" {
		return c.PlanningTime
	}
	return "10:00"
}

func (c ScheduleConfig) nudgeOrDefault() string {
	if c.NudgeTime != "" {
		return c.NudgeTime
	}
	return "11:00"
}

func (c ScheduleConfig) middayOrDefault() string {
	if c.MiddayTime != "" {
		return c.MiddayTime
	}
	return "15:00"
}

func (c ScheduleConfig) eodOrDefault() string {
	if c.EODTime != "" {
		return c.EODTime
	}
	return "19:00"
}

func (c LoggingConfig) levelOrDefault() string {
	if c.Level != "" {
		return c.Level
	}
	return "info"
}

func (c LoggingConfig) formatOrDefault() string {
	if c.Format != "" {
		return c.Format
	}
	return "text"
}

func (c LoggingConfig) maxSizeMBOrDefault() int {
	if c.MaxSizeMB > 0 {
		return c.MaxSizeMB
	}
	return 50
}

func (c LoggingConfig) maxFilesOrDefault() int {
	if c.MaxFiles > 0 {
		return c.MaxFiles
	}
	return 5
}

// location returns the resolved timezone, loading it on first use.
func (c *Config) location() *time.Location {
	if c.loc != nil {
		return c.loc
	}
	tz := c.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logWarn("bad timezone, using local", "tz", tz, "error", err)
		loc = time.Local
	}
	c.loc = loc
	return loc
}

// --- Config Loading ---

func loadConfig(path string) *Config {
	cfg, err := tryLoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// tryLoadConfig loads the config file (optional, the bot can run purely
// from environment variables), applies environment overrides, and validates
// the result.
func tryLoadConfig(path string) (*Config, error) {
	var cfg Config

	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.baseDir = filepath.Dir(path)
	case os.IsNotExist(err) && !explicit:
		cfg.baseDir = "."
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets environment variables win over the config file.
// Names match the original deployment's .env contract.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_GROUP_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.GroupChatID = id
		} else {
			logWarn("TELEGRAM_GROUP_CHAT_ID is not an integer", "value", v)
		}
	}
	if v := os.Getenv("GOOGLE_SHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"); v != "" {
		cfg.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("BOT_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken (or TELEGRAM_BOT_TOKEN) is required")
	}
	if cfg.Telegram.GroupChatID == 0 {
		return fmt.Errorf("telegram.groupChatId (or TELEGRAM_GROUP_CHAT_ID) is required")
	}
	if cfg.Store.backendOrDefault() == "sheets" {
		if cfg.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets.spreadsheetId (or GOOGLE_SHEET_ID) is required for the sheets backend")
		}
		if cfg.Sheets.CredentialsFile == "" {
			return fmt.Errorf("sheets.credentialsFile (or GOOGLE_SERVICE_ACCOUNT_FILE) is required for the sheets backend")
		}
	}
	for _, t := range []string{
		cfg.Schedule.planningOrDefault(),
		cfg.Schedule.nudgeOrDefault(),
		cfg.Schedule.middayOrDefault(),
		cfg.Schedule.eodOrDefault(),
	} {
		if h, _ := parseHHMM(t); h < 0 {
			return fmt.Errorf("schedule time %q is not HH:MM", t)
		}
	}
	return nil
}
