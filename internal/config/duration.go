package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or integer seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(time.Duration(asInt) * time.Second)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer seconds: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
