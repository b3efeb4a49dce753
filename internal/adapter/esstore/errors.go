package esstore

import "fmt"

// DriverError reports a store response the driver did not expect and cannot
// retry, typically a 4xx rejection of a request the core built.
type DriverError struct {
	Op     string
	Status int
	Body   string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: store returned status %d: %s", e.Op, e.Status, e.Body)
}

func unexpectedStatus(op string, status int, body []byte) error {
	return &DriverError{Op: op, Status: status, Body: truncate(body, 200)}
}
