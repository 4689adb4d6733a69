package helper

import "fmt"

// Error wraps an error with the operation that failed.
type Error struct {
	Operation string
	Err       error
}

// NewError wraps err with the operation that produced it.
// The original error stays reachable through errors.Is and errors.As.
func NewError(operation string, err error) error {
	return &Error{
		Operation: operation,
		Err:       err,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
