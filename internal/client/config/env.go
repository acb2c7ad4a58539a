package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// parseEnv overlays cfg with COURSE_ALERTS_* variables. Unset variables
// leave the current value in place.
func parseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
