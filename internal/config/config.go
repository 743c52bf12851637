package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	OIDCConfig
	SecurityConfig
	RelayConfig
	StoreConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	OIDC
	Security
	Relay
	Store
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] failed to parse environment: %w", err)
	}
	return c, nil
}

// LoadFromMap parses the configuration from vars instead of the process
// environment. Keys missing from vars take their defaults.
func LoadFromMap(vars map[string]string) (Config, error) {
	c := mainConfig{}
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("[config LoadFromMap] failed to parse variables: %w", err)
	}
	return c, nil
}
