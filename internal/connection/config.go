package connection

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath points at an optional kernel configuration file.
const EnvConfigPath = "VKERNEL_CONFIG"

var ErrInvalidTimeout = errors.New("connection: invalid execution timeout")

// Config holds kernel tuning that is not part of the front-end contract.
type Config struct {
	Compiler       string `toml:"compiler"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	WorkspaceRoot  string `toml:"workspace_root"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Compiler:       "v",
		TimeoutSeconds: 0,
		WorkspaceRoot:  "",
	}
}

// LoadConfig reads the TOML config at path. An empty path falls back to the
// VKERNEL_CONFIG environment variable; a missing file yields defaults.
func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("connection: config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("connection: config parse failed (%s): %w", path, err)
	}
	if cfg.Compiler == "" {
		cfg.Compiler = "v"
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, c.TimeoutSeconds)
	}
	return nil
}

// Timeout converts the configured bound to a duration; zero means no bound.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
