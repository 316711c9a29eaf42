// Package config loads the AppConfig from which cmd/undeleter builds
// the reconciler's fully populated reconcile.Options, reading the
// process environment and an optional YAML overlay file. The core
// reconcile package never imports this package or env/yaml directly --
// cmd/undeleter is the only caller.
package config

import (
	"errors"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
	"github.com/archerheffern/imessage-undeleter/internal/model"
)

var (
	errMissingDBPath     = errors.New("db_path is required")
	errMissingExportPath = errors.New("export_path is required")
	errMissingBackupRoot = errors.New("backup_root is required when platform is ios")
)

// AppConfig is the env/YAML-sourced configuration surface. Each YAML
// key in an UNDELETER_CONFIG_FILE overlay is its env var name without
// the UNDELETER_ prefix, lower-cased (UNDELETER_DB_PATH -> db_path).
type AppConfig struct {
	DBPath         string `env:"UNDELETER_DB_PATH" yaml:"db_path"`
	ExportPath     string `env:"UNDELETER_EXPORT_PATH" yaml:"export_path"`
	AttachmentRoot string `env:"UNDELETER_ATTACHMENT_ROOT" yaml:"attachment_root"`
	BackupRoot     string `env:"UNDELETER_BACKUP_ROOT" yaml:"backup_root"`
	HomeDir        string `env:"UNDELETER_HOME_DIR" yaml:"home_dir"`
	Platform       string `env:"UNDELETER_PLATFORM" envDefault:"macos" yaml:"platform"`

	CustomName  string `env:"UNDELETER_CUSTOM_NAME" yaml:"custom_name"`
	UseCallerID bool   `env:"UNDELETER_USE_CALLER_ID" envDefault:"false" yaml:"use_caller_id"`

	AttachmentManagerMode string `env:"UNDELETER_ATTACHMENT_MANAGER_MODE" envDefault:"full" yaml:"attachment_manager_mode"`
	TickIntervalMS        int    `env:"UNDELETER_TICK_INTERVAL_MS" envDefault:"500" yaml:"tick_interval_ms"`

	QueryLimit        int   `env:"UNDELETER_QUERY_LIMIT" envDefault:"0" yaml:"query_limit"`
	SelectedChatIDs   []int `env:"UNDELETER_SELECTED_CHAT_IDS" envSeparator:"," yaml:"selected_chat_ids"`
	SelectedHandleIDs []int `env:"UNDELETER_SELECTED_HANDLE_IDS" envSeparator:"," yaml:"selected_handle_ids"`

	// ConfigFile is not itself read from the environment into this
	// field; Load reads UNDELETER_CONFIG_FILE directly to decide
	// whether to overlay a YAML file onto the env-sourced defaults.
	ConfigFile string `env:"-" yaml:"-"`
}

// Load reads AppConfig from the environment via caarlos0/env, then, if
// UNDELETER_CONFIG_FILE is set, overlays a YAML file on top of the
// env-sourced values (YAML wins on any field it sets).
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, apperr.New(apperr.Config, "parse environment", err)
	}

	if path := os.Getenv("UNDELETER_CONFIG_FILE"); path != "" {
		cfg.ConfigFile = path
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.New(apperr.Config, "read config file", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, apperr.New(apperr.Config, "parse config file", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.DBPath == "" {
		return apperr.New(apperr.Config, "validate", errMissingDBPath)
	}
	if c.ExportPath == "" {
		return apperr.New(apperr.Config, "validate", errMissingExportPath)
	}
	if c.Platform == "ios" && c.BackupRoot == "" {
		return apperr.New(apperr.Config, "validate", errMissingBackupRoot)
	}
	return nil
}

// ResolvedPlatform translates the configured platform string into the
// core's model.Platform enum, defaulting to macOS on an unrecognized value.
func (c *AppConfig) ResolvedPlatform() model.Platform {
	if c.Platform == "ios" {
		return model.PlatformIOS
	}
	return model.PlatformMacOS
}

// ResolvedAttachmentManagerMode translates the configured mode string into the
// core's model.AttachmentManagerMode enum, defaulting to Full on an
// unrecognized value.
func (c *AppConfig) ResolvedAttachmentManagerMode() model.AttachmentManagerMode {
	switch c.AttachmentManagerMode {
	case "disabled":
		return model.AttachmentManagerDisabled
	case "compatible":
		return model.AttachmentManagerCompatible
	default:
		return model.AttachmentManagerFull
	}
}
