package herald

import (
	"fmt"
)

// GatewayError reports a Herald request that failed in transport or returned
// a non-2xx status. Status is zero when no response was received.
type GatewayError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 && e.Err == nil {
		return fmt.Sprintf("herald API error: %d %s", e.Status, e.Body)
	}
	return fmt.Sprintf("herald API error: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
