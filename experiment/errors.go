package experiment

import "fmt"

// ConfigurationError reports an invalid or missing experiment parameter.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("experiment config: %s %q %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("experiment config: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
