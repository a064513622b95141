package db

import (
	"errors"
	"fmt"
)

// Conditions reported by Store operations. Match with errors.Is.
var (
	ErrNotRegistered    = errors.New("kind not registered")
	ErrPermissionDenied = errors.New("permission denied")
	ErrKindNotSpecified = errors.New("kind not specified")
	ErrInvalidOperator  = errors.New("invalid query operator")
	ErrSearchOperator   = errors.New("search operator not allowed in find")
	ErrNotFound         = errors.New("document not found")
	ErrReservedKind     = errors.New("kind name is reserved")
	ErrTooManyIDs       = errors.New("too many ids requested")
)

// KindError attaches the kind an operation failed on.
type KindError struct {
	Kind string
	Err  error
}

// Error implements the error interface.
func (e *KindError) Error() string {
	if e.Kind == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: '%s'", e.Err, e.Kind)
}

// Unwrap returns the underlying condition for errors.Is.
func (e *KindError) Unwrap() error {
	return e.Err
}

func kindErr(kind string, err error) error {
	return &KindError{Kind: kind, Err: err}
}

// ErrorKind returns the kind named by the first KindError in err's chain.
func ErrorKind(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}
