// Package config loads the server's own configuration: listen port,
// binary/token overrides, dev mode, and the per-install state
// directory. Precedence is CLI flag > environment variable > optional
// TOML file > built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultPort = 3456

// Config is the fully resolved server configuration.
type Config struct {
	Port       int
	BinaryName string
	DevMode    bool
	DotDir     string

	// TokenOverrideEnv / BinaryOverrideEnv are the env var *names* this
	// install reads for the shared token and binary path overrides,
	// derived from BinaryName (e.g. "claude" -> CLAUDE_REMOTE_TOKEN).
	// They are handed to authgate and binresolve, not resolved here.
	TokenOverrideEnv  string
	BinaryOverrideEnv string

	// TokenOverride is the literal value of TokenOverrideEnv, read once
	// at load time since authgate needs the value, not the name.
	TokenOverride string
}

// Load resolves configuration for binaryName (the target CLI's argv[0]
// basename). configFile, if non-empty, is an optional TOML file
// layered beneath environment variables and CLI flags. flags, if
// non-nil, is bound as the highest-precedence source.
func Load(binaryName, configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", defaultPort)
	v.SetDefault("dev_mode", false)

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", configFile, err)
			}
		}
	}

	v.AutomaticEnv()
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("dev_mode", "DEV_MODE")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	upper := strings.ToUpper(binaryName)
	tokenEnv := upper + "_REMOTE_TOKEN"
	binaryEnv := upper + "_PATH"

	dotDir, err := resolveDotDir(binaryName)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:              v.GetInt("port"),
		BinaryName:        binaryName,
		DevMode:           v.GetBool("dev_mode"),
		DotDir:            dotDir,
		TokenOverrideEnv:  tokenEnv,
		BinaryOverrideEnv: binaryEnv,
		TokenOverride:     os.Getenv(tokenEnv),
	}, nil
}

// resolveDotDir returns the per-install state directory under the
// user's home, e.g. ~/.claude-code-remote.
func resolveDotDir(binaryName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "."+binaryName+"-code-remote"), nil
}
