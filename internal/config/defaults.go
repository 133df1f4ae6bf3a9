package config

import "github.com/apifoundry/apibridge/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "apibridge",
			Port: 4280,
		},
		Definitions: DefinitionsConfig{
			Dir: "./definitions",
		},
		Cache: CacheConfig{
			Dir: "", // disabled unless configured
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
			MaxResponseMB:  50,
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console", "file"},
		},
	}
}
