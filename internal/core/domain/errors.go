package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput   = errors.New("malformed input")
	ErrAmbiguousQuery   = errors.New("ambiguous query")
	ErrPartialRetrieval = errors.New("partial retrieval failure")
	ErrRetrievalFailed  = errors.New("retrieval failed")
	ErrUnsafeLookup     = errors.New("unsafe lookup rejected")
	ErrNotFound         = errors.New("not found")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
