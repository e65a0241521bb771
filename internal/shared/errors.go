package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired indicates a call without a business scope.
	ErrTenantRequired = errors.New("business id required")
)
