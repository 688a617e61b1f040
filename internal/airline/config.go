package airline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

// DefaultConfigPath is the default location of the airline registry file.
const DefaultConfigPath = "airlines.yaml"

// ConfigPathEnvVar is the environment variable name for a custom registry path.
const ConfigPathEnvVar = "AIRLINES_CONFIG_PATH"

// fileConfig is the on-disk shape of the registry file.
type fileConfig struct {
	Airlines []Airline `yaml:"airlines"`
}

// LoadRegistry loads the airline registry from a YAML file at the given path.
//
// Behavior:
//   - Returns the default registry if the file doesn't exist or lists no airlines
//   - Returns an error for unreadable files, invalid YAML or registry violations
//     (duplicate codes, bad codes, empty names)
//
// Unlike optional settings, a broken registry is never silently replaced:
// running against the wrong carriers would write the wrong partitions.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Airline registry file not found, using defaults",
				slog.String("path", path))

			return DefaultRegistry(), nil
		}

		return nil, fmt.Errorf("failed to read airline registry %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse airline registry %s: %w", path, err)
	}

	if len(cfg.Airlines) == 0 {
		slog.Warn("Airline registry file lists no airlines, using defaults",
			slog.String("path", path))

		return DefaultRegistry(), nil
	}

	registry, err := NewRegistry(cfg.Airlines...)
	if err != nil {
		return nil, fmt.Errorf("invalid airline registry %s: %w", path, err)
	}

	return registry, nil
}

// LoadRegistryFromEnv loads the registry from the path in AIRLINES_CONFIG_PATH,
// falling back to "airlines.yaml" in the current directory.
func LoadRegistryFromEnv() (*Registry, error) {
	return LoadRegistry(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
