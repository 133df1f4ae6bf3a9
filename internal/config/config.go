package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/apifoundry/apibridge/internal/common"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig         `toml:"server"`
	Definitions DefinitionsConfig    `toml:"definitions"`
	Cache       CacheConfig          `toml:"cache"`
	Credentials CredentialsConfig    `toml:"credentials"`
	HTTP        HTTPConfig           `toml:"http"`
	Logging     common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains MCP server settings.
type ServerConfig struct {
	Name string `toml:"name"`
	Port int    `toml:"port"`
}

// DefinitionsConfig locates the OpenAPI definition files.
type DefinitionsConfig struct {
	Dir string `toml:"dir"`
}

// CacheConfig controls the enriched-catalog cache.
// An empty Dir disables persistent caching entirely.
type CacheConfig struct {
	Dir   string `toml:"dir"`
	Force bool   `toml:"force"` // bypass cache reads, always regenerate
}

// CredentialsConfig holds process-wide default credentials applied when a
// tool declares no authentication override of its own.
type CredentialsConfig struct {
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Token      string `toml:"token"`
	APIKey     string `toml:"api_key"`
	APIKeyName string `toml:"api_key_name"`
	APIKeyIn   string `toml:"api_key_in"` // header, query, cookie
}

// Map converts the default credentials into the credential map shape used
// by authentication resolution. Empty fields are omitted.
func (c CredentialsConfig) Map() map[string]any {
	creds := map[string]any{}
	if c.Username != "" {
		creds["username"] = c.Username
	}
	if c.Password != "" {
		creds["password"] = c.Password
	}
	if c.Token != "" {
		creds["token"] = c.Token
	}
	if c.APIKey != "" {
		creds["key"] = c.APIKey
	}
	if c.APIKeyName != "" {
		creds["name"] = c.APIKeyName
	}
	if c.APIKeyIn != "" {
		creds["in"] = c.APIKeyIn
	}
	return creds
}

// HTTPConfig contains outbound HTTP client settings.
type HTTPConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	MaxResponseMB  int `toml:"max_response_mb"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// A missing file is not an error; defaults plus env apply.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies APIBRIDGE_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("APIBRIDGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dir := os.Getenv("APIBRIDGE_DEFINITIONS_DIR"); dir != "" {
		config.Definitions.Dir = dir
	}
	if dir := os.Getenv("APIBRIDGE_CACHE_DIR"); dir != "" {
		config.Cache.Dir = dir
	}
	if force := os.Getenv("APIBRIDGE_CACHE_FORCE"); force != "" {
		if f, err := strconv.ParseBool(force); err == nil {
			config.Cache.Force = f
		}
	}
	if user := os.Getenv("APIBRIDGE_USERNAME"); user != "" {
		config.Credentials.Username = user
	}
	if pass := os.Getenv("APIBRIDGE_PASSWORD"); pass != "" {
		config.Credentials.Password = pass
	}
	if token := os.Getenv("APIBRIDGE_TOKEN"); token != "" {
		config.Credentials.Token = token
	}
	if key := os.Getenv("APIBRIDGE_API_KEY"); key != "" {
		config.Credentials.APIKey = key
	}
	if level := os.Getenv("APIBRIDGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, definitionsDir, cacheDir string) {
	if definitionsDir != "" {
		config.Definitions.Dir = definitionsDir
	}
	if cacheDir != "" {
		config.Cache.Dir = cacheDir
	}
}
