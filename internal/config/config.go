// Package config is the viper-backed configuration singleton. It is
// initialized once at startup; environment variables take precedence over
// the config file, which takes precedence over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"

	"github.com/untoldecay/kuzugo/internal/debug"
)

var v *viper.Viper

// DefaultBufferPoolSize is used when neither config nor environment sets
// one.
const DefaultBufferPoolSize = 256 * 1024 * 1024

// Initialize sets up the viper configuration singleton. Should be called
// once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Explicitly locate config.yaml: next to the database directory if one
	// is set, then the user config directory.
	configFileSet := false
	if dbPath := os.Getenv("KUZU_DB_PATH"); dbPath != "" {
		configPath := filepath.Join(dbPath, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			configFileSet = true
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "kz", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Automatic environment variable binding: KUZU_DB_PATH,
	// KUZU_BUFFER_POOL_SIZE, KUZU_MAX_THREADS, ...
	v.SetEnvPrefix("KUZU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db-path", "")
	v.SetDefault("buffer-pool-size", "")
	v.SetDefault("max-threads", 0)
	v.SetDefault("json", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log-file", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// DBPath returns the configured database path (KUZU_DB_PATH), empty when
// unset.
func DBPath() string { return ensure().GetString("db-path") }

// BufferPoolSize parses the configured pool size, accepting human-readable
// values like "256MB" (KUZU_BUFFER_POOL_SIZE).
func BufferPoolSize() (uint64, error) {
	raw := ensure().GetString("buffer-pool-size")
	if raw == "" {
		return DefaultBufferPoolSize, nil
	}
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("invalid buffer-pool-size %q: %w", raw, err)
	}
	return size.Bytes(), nil
}

// MaxThreads returns the configured worker cap; zero means one per CPU.
func MaxThreads() int { return ensure().GetInt("max-threads") }

// JSON reports whether output should be machine-readable.
func JSON() bool { return ensure().GetBool("json") }

// Quiet suppresses informational output.
func Quiet() bool { return ensure().GetBool("quiet") }

// LogFile is the rotating debug log destination, empty for stderr.
func LogFile() string { return ensure().GetString("log-file") }

// Set overrides a key for the process lifetime; used by CLI flags.
func Set(key string, value any) { ensure().Set(key, value) }
