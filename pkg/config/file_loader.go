package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/icecake0141/nwrunner/pkg/logger"
)

// FileConfigLoader loads configuration from a local JSON file.
type FileConfigLoader struct {
	logger logger.Logger
}

// Load implements ConfigLoader by reading and unmarshaling a JSON file. A
// missing file is not an error: it leaves dst at whatever defaults the
// caller pre-populated, matching nwrunnerd's optional -config flag.
func (f *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	if f.logger != nil {
		f.logger.Debug().Str("path", path).Msg("loading configuration from file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if f.logger != nil {
				f.logger.Debug().Str("path", path).Msg("config file not found, using defaults")
			}

			return nil
		}

		if f.logger != nil {
			f.logger.Error().Str("path", path).Err(err).Msg("failed to read configuration file")
		}

		return fmt.Errorf("failed to read file %q: %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		if f.logger != nil {
			f.logger.Error().Str("path", path).Err(err).Msg("failed to unmarshal JSON from file")
		}

		return fmt.Errorf("failed to unmarshal JSON from %q: %w", path, err)
	}

	if f.logger != nil {
		f.logger.Info().Str("path", path).Msg("loaded configuration from file")
	}

	return nil
}
