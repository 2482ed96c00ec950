package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConfig     = errors.New("configuration error")
	ErrAuth       = errors.New("authentication error")
	ErrUpstream   = errors.New("upstream rpc failed")

	// ErrMissingAuth means neither a forwarded Authorization header nor a
	// service-role fallback was available for the matching RPC.
	ErrMissingAuth = fmt.Errorf("%w: missing_auth", ErrAuth)
)
