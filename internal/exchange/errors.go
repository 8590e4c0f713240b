package exchange

import "fmt"

// BodyTooLargeError is returned when a buffered body exceeds its limit.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.Limit)
}
