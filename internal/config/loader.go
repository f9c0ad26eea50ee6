package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables that override file settings.
const EnvPrefix = "GIFTINDEXER"

// envOverrides lists the settings that are commonly injected as secrets or per-deployment values.
// Unset variables leave the file value untouched.
type envOverrides struct {
	RPCHTTPURL       string `envconfig:"RPC_HTTP_URL"`
	RPCWSURL         string `envconfig:"RPC_WS_URL"`
	RPCWSFallbackURL string `envconfig:"RPC_WS_FALLBACK_URL"`
	DatabaseDSN      string `envconfig:"DATABASE_DSN"`
	DatabasePath     string `envconfig:"DATABASE_PATH"`
	APIToken         string `envconfig:"API_TOKEN"`
	ListenAddress    string `envconfig:"LISTEN_ADDRESS"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	InstanceID       string `envconfig:"INSTANCE_ID"`
}

// LoadFromFile loads configuration from a file, auto-detecting the format by extension.
// Supported formats: .yaml, .yml, .json, .toml
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return LoadFromYAML(path)
	case ".json":
		return LoadFromJSON(path)
	case ".toml":
		return LoadFromTOML(path)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// LoadFromYAML loads configuration from a YAML file.
func LoadFromYAML(path string) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromJSON loads configuration from a JSON file.
func LoadFromJSON(path string) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromTOML loads configuration from a TOML file.
func LoadFromTOML(path string) (*pkgconfig.Config, error) {
	var cfg pkgconfig.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return processConfig(&cfg)
}

// processConfig applies environment overrides and defaults, then validates the configuration.
func processConfig(cfg *pkgconfig.Config) (*pkgconfig.Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *pkgconfig.Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	setIfPresent(&cfg.RPC.HTTPURL, env.RPCHTTPURL)
	setIfPresent(&cfg.RPC.WSURL, env.RPCWSURL)
	setIfPresent(&cfg.RPC.WSFallbackURL, env.RPCWSFallbackURL)
	setIfPresent(&cfg.DB.DSN, env.DatabaseDSN)
	setIfPresent(&cfg.DB.Path, env.DatabasePath)
	setIfPresent(&cfg.API.Security.Token, env.APIToken)
	setIfPresent(&cfg.API.ListenAddress, env.ListenAddress)
	setIfPresent(&cfg.Logging.DefaultLevel, env.LogLevel)
	setIfPresent(&cfg.Indexer.InstanceID, env.InstanceID)

	return nil
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
