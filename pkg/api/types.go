// pkg/api/types.go
package api

import (
	"github.com/valeran/chartex/internal/config"
	"github.com/valeran/chartex/internal/dispatch"
)

// Re-exported types so callers never import internal packages.
type (
	Config  = config.Config
	Options = dispatch.Options
	Result  = dispatch.Result
	Record  = dispatch.Record
)

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadFromFile(path)
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return config.Default()
}
