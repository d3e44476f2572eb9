package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/rendis/vsm/internal/persistence"
)

// Config holds all vsm server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string  `json:"listen_addr" validate:"required,hostname_port"`
	BaseURL         string  `json:"base_url" validate:"omitempty,url"`
	DBPath          string  `json:"db_path" validate:"required"`
	CanvasKey       string  `json:"canvas_key" validate:"required"`
	LogLevel        string  `json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string  `json:"log_format" validate:"oneof=text json"`
	Panel           bool    `json:"panel"`
	TaktTime        float64 `json:"takt_time" validate:"gte=0"`
	HistoryLimit    int     `json:"history_limit" validate:"gte=0"`
	BackupCron      string  `json:"backup_cron" validate:"cron"`
	VacuumCron      string  `json:"vacuum_cron" validate:"cron"`
	BackupRetention int     `json:"backup_retention" validate:"gte=0"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		DBPath:          filepath.Join(vsmDir(), "vsm.db"),
		CanvasKey:       persistence.CanvasKey,
		LogLevel:        "info",
		LogFormat:       "text",
		Panel:           true,
		BackupCron:      "0 * * * *",
		VacuumCron:      "30 3 * * 0",
		BackupRetention: 24,
	}
}

func vsmDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vsm"
	}
	return filepath.Join(home, ".vsm")
}

func settingsPath() string {
	return filepath.Join(vsmDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(vsmDir(), "vsm.pid")
}

func binDir() string {
	return filepath.Join(vsmDir(), "bin")
}

// loadConfig layers settings.json and VSM_* environment variables over the
// defaults and validates the result.
func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Layer 3: env vars override.
	if v := getenv("VSM_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("VSM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("VSM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("VSM_CANVAS_KEY"); v != "" {
		cfg.CanvasKey = v
	}
	if v := getenv("VSM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("VSM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getenv("VSM_PANEL"); v != "" {
		cfg.Panel = v == "true" || v == "1"
	}
	if v := getenv("VSM_TAKT_TIME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TaktTime = f
		}
	}
	if v := getenv("VSM_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
	if v := getenv("VSM_BACKUP_CRON"); v != "" {
		cfg.BackupCron = v
	}
	if v := getenv("VSM_VACUUM_CRON"); v != "" {
		cfg.VacuumCron = v
	}
	if v := getenv("VSM_BACKUP_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BackupRetention = n
		}
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg, validateConfig(cfg)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// "-" disables a maintenance job.
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		expr := fl.Field().String()
		if expr == "" || expr == "-" {
			return true
		}
		_, err := cronParser.Parse(expr)
		return err == nil
	})
	return v
}

func validateConfig(cfg Config) error {
	err := newConfigValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// parseLevel maps a validated log_level onto slog.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	PanelChanged    bool
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.Panel != new.Panel {
		d.PanelChanged = true
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	restart := []struct {
		name    string
		changed bool
	}{
		{"listen_addr", old.ListenAddr != new.ListenAddr},
		{"base_url", old.BaseURL != new.BaseURL},
		{"db_path", old.DBPath != new.DBPath},
		{"canvas_key", old.CanvasKey != new.CanvasKey},
		{"log_format", old.LogFormat != new.LogFormat},
		{"takt_time", old.TaktTime != new.TaktTime},
		{"history_limit", old.HistoryLimit != new.HistoryLimit},
		{"backup_cron", old.BackupCron != new.BackupCron},
		{"vacuum_cron", old.VacuumCron != new.VacuumCron},
		{"backup_retention", old.BackupRetention != new.BackupRetention},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartNeeded = append(d.RestartNeeded, r.name)
		}
	}
	return d
}
