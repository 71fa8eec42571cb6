// Package config loads datahub's runtime configuration: a layered
// viper.Viper instance combining environment variables, a project-local
// TOML override, and a YAML config file, from highest precedence to lowest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/nxthongbk/datahub/internal/debug"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Should be called once at
// process startup, before any Get* call.
//
// Precedence (highest to lowest): environment variables > project
// datahub.toml > datahub.yaml (project > user config dir > home dir) >
// built-in defaults.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD looking for a project-local config.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".datahub", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/datahub/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "datahub", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.datahub/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".datahub", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("DATAHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}

	if err := mergeProjectTOML(v); err != nil {
		return err
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Backup store.
	v.SetDefault("backup-root", defaultBackupRoot())
	v.SetDefault("backup.retry-attempts", 3)
	v.SetDefault("backup.retry-backoff", "250ms")

	// Naming bound: resource paths are bounded by a maximum full-path length.
	v.SetDefault("max-path-length", 255)

	// Observability.
	v.SetDefault("log-format", "text")
	v.SetDefault("debug", false)
	v.SetDefault("log-file", "")
	v.SetDefault("log-rotate.max-size-mb", 10)
	v.SetDefault("log-rotate.max-backups", 3)
	v.SetDefault("log-rotate.max-age-days", 28)

	// Orphan sweep over unused backup files.
	v.SetDefault("sweep.dry-run", false)
	v.SetDefault("sweep.on-fence-clear", true)
}

// defaultBackupRoot resolves to "backup/" relative to the process working
// directory, or /home/root/dataHubBackup/ when running on-device.
func defaultBackupRoot() string {
	if os.Getenv("DATAHUB_ON_DEVICE") == "1" {
		return "/home/root/dataHubBackup/"
	}
	return "backup/"
}

// projectTOML mirrors a subset of keys that may be set in a project-local
// datahub.toml, for embedded deployments that prefer TOML over YAML.
type projectTOML struct {
	BackupRoot    string `toml:"backup_root"`
	MaxPathLength int    `toml:"max_path_length"`
	LogFormat     string `toml:"log_format"`
	Debug         bool   `toml:"debug"`
}

// mergeProjectTOML reads ./datahub.toml, if present, and overlays its values
// onto v. TOML takes precedence over the YAML layers but not over env vars:
// v.Set outranks viper's env lookup, so a key whose DATAHUB_ environment
// variable is set is left untouched here.
func mergeProjectTOML(v *viper.Viper) error {
	path := "datahub.toml"
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	var cfg projectTOML
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	envKey := strings.NewReplacer(".", "_", "-", "_")
	envSet := func(key string) bool {
		_, ok := os.LookupEnv("DATAHUB_" + strings.ToUpper(envKey.Replace(key)))
		return ok
	}

	if cfg.BackupRoot != "" && !envSet("backup-root") {
		v.Set("backup-root", cfg.BackupRoot)
	}
	if cfg.MaxPathLength > 0 && !envSet("max-path-length") {
		v.Set("max-path-length", cfg.MaxPathLength)
	}
	if cfg.LogFormat != "" && !envSet("log-format") {
		v.Set("log-format", cfg.LogFormat)
	}
	if cfg.Debug && !envSet("debug") {
		v.Set("debug", cfg.Debug)
	}

	debug.Logf("merged project overrides from %s", path)
	return nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value, overriding whatever layer would otherwise
// apply. Mostly used by tests.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}
