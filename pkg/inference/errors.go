package inference

import "fmt"

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference: HTTP %d: %s", e.StatusCode, e.Body)
}
