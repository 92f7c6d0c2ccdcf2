package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/custodhq/custod/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file at the default path.
// If the config file does not exist, it returns the defaults (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path. File settings
// overlay the defaults; absent keys keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expandConfigEnvVars(cfg)
	return cfg, nil
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Hostname = expandEnvVars(cfg.Hostname)
	cfg.RunDir = expandEnvVars(cfg.RunDir)
	cfg.TokenDir = expandEnvVars(cfg.TokenDir)
	cfg.TokenOwner = expandEnvVars(cfg.TokenOwner)
	cfg.TokenTTL = expandEnvVars(cfg.TokenTTL)
	cfg.ConnectTimeout = expandEnvVars(cfg.ConnectTimeout)
	cfg.ReadTimeout = expandEnvVars(cfg.ReadTimeout)
	cfg.WriteTimeout = expandEnvVars(cfg.WriteTimeout)
	cfg.AcceptTimeout = expandEnvVars(cfg.AcceptTimeout)
	cfg.ShutdownGrace = expandEnvVars(cfg.ShutdownGrace)
	cfg.LogLevel = expandEnvVars(cfg.LogLevel)
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
