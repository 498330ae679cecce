package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration reads a non-negative duration. An empty value yields (0, false).
func parseDuration(path, raw string) (time.Duration, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, true, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	case d < 0:
		return 0, true, fmt.Errorf("%s: %s is negative", path, d)
	}
	return d, true, nil
}

// durationOr falls back to def for omitted or zero values.
func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, _, err := parseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		d = def
	}
	return d, nil
}
