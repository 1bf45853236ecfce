package kyobo

import (
	"fmt"

	"github.com/listenupapp/kyobo-metadata/internal/errors"
)

// Error wraps a failure with the operation and product it happened in.
// The wrapped error keeps its domain code, so errors.Is against the
// sentinels in internal/errors still works.
type Error struct {
	Op        string // Operation: "search", "detail", "toc", "cover", "get"
	ProductID string // If applicable
	Err       error
}

func (e *Error) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("kyobo %s [%s]: %v", e.Op, e.ProductID, e.Err)
	}
	return fmt.Sprintf("kyobo %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context. A nil err stays nil.
func wrapError(op, productID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, ProductID: productID, Err: err}
}

// Code returns the domain code of the wrapped error.
func (e *Error) Code() errors.Code {
	return errors.CodeOf(e.Err)
}
