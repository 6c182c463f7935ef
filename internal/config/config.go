package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const appName = "ferrisdoc"

type MemoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type StoreConfig struct {
	ReadCacheEntries int `mapstructure:"read_cache_entries"`
}

type DaemonConfig struct {
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level slog.Level `mapstructure:"level"`
}

type Config struct {
	CacheDir string       `mapstructure:"cache_dir"`
	Memo     MemoConfig   `mapstructure:"memo"`
	Store    StoreConfig  `mapstructure:"store"`
	Daemon   DaemonConfig `mapstructure:"daemon"`
	Watch    WatchConfig  `mapstructure:"watch"`
	Log      LogConfig    `mapstructure:"log"`
}

// cacheBase returns the base cache directory for ferrisdoc.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/ferrisdoc as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// CacheBase returns the directory holding every ferrisdoc cache.
func CacheBase() string {
	return cacheBase()
}

// ModelDir returns the default model cache root.
func ModelDir() string {
	return filepath.Join(cacheBase(), "model")
}

// MemoDir returns the path to the parse memo (content-addressed storage).
func MemoDir() string {
	return filepath.Join(cacheBase(), "memo")
}

// DBPath returns the default DuckDB export file.
func DBPath() string {
	return filepath.Join(cacheBase(), "export.duckdb")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName, "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), appName, "daemon.sock")
}

// newViper builds a viper instance with defaults, search paths and env
// binding. file, when set, replaces the search.
func newViper(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, appName))
		} else if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", appName))
		}
	}

	v.SetDefault("cache_dir", ModelDir())
	v.SetDefault("memo.enabled", true)
	v.SetDefault("store.read_cache_entries", 1024)
	v.SetDefault("daemon.expiration_seconds", 600)
	v.SetDefault("watch.debounce", "250ms")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func stringToLevelHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(slog.Level(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(data.(string))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", data, err)
		}
		return level, nil
	}
}

// Load reads the configuration. file may name an explicit config file;
// otherwise config.toml is searched in the working directory and the XDG
// config directory, and a missing file is not an error.
func Load(file string) (*Config, error) {
	v := newViper(file)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToLevelHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.CacheDir = expandHome(config.CacheDir)
	if config.Daemon.ExpirationSeconds <= 0 {
		return nil, fmt.Errorf("daemon.expiration_seconds must be positive, got %d", config.Daemon.ExpirationSeconds)
	}
	return &config, nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// DaemonExpiration returns the daemon's inactivity timeout.
func (c *Config) DaemonExpiration() time.Duration {
	return time.Duration(c.Daemon.ExpirationSeconds) * time.Second
}
