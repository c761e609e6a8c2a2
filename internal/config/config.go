package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/agentx-labs/extmgr/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Recognized configuration keys.
const (
	KeyInstallRoot    = "install_root"
	KeyWorkers        = "workers"
	KeyLogLevel       = "log.level"
	KeyLogDevelopment = "log.development"
	KeyScanIgnore     = "scan.ignore"
	KeyMetricsFile    = "metrics_file"
)

// Keys lists every key accepted by Set.
var Keys = []string{
	KeyInstallRoot,
	KeyWorkers,
	KeyLogLevel,
	KeyLogDevelopment,
	KeyScanIgnore,
	KeyMetricsFile,
}

// Settings is the resolved configuration.
type Settings struct {
	InstallRoot string `mapstructure:"install_root"`
	Workers     int    `mapstructure:"workers"`
	Log         struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
	Scan struct {
		Ignore []string `mapstructure:"ignore"`
	} `mapstructure:"scan"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// Dir returns the path to the config directory (~/.extmgr/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.extmgr/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// Nested keys map to underscores, so log.level reads EXTMGR_LOG_LEVEL.
func Load() error {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine.
		if _, statErr := os.Stat(FilePath()); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", FilePath(), err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault(KeyInstallRoot, "")
	viper.SetDefault(KeyWorkers, runtime.GOMAXPROCS(0))
	viper.SetDefault(KeyLogLevel, "error")
	viper.SetDefault(KeyLogDevelopment, false)
	viper.SetDefault(KeyScanIgnore, []string{})
	viper.SetDefault(KeyMetricsFile, "")
}

// Current returns the resolved settings.
func Current() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding config: %w", err)
	}
	return s, nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file. Only values
// already in the file are written back, never env or flag overrides.
func Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	var v any = value
	if key == KeyScanIgnore {
		v = splitList(value)
	}

	file := viper.New()
	file.SetConfigFile(FilePath())
	file.SetConfigType(fileType)
	if err := file.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(FilePath()); !os.IsNotExist(statErr) {
			return fmt.Errorf("reading config file %s: %w", FilePath(), err)
		}
	}
	file.Set(key, v)
	if err := file.WriteConfigAs(FilePath()); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	viper.Set(key, v)
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
