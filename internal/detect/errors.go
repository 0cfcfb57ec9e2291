package detect

import "fmt"

// ConfigurationError reports invalid or missing detector setup, such as an
// unknown recognizer name or a model backend that failed to initialize.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("detector configuration error: %s", e.Detail)
}

// DetectionError reports a failure of the detector while processing text.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}
