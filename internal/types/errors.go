package types

import "errors"

// Persistence sentinel errors. Defined here so every storage backend
// and its callers share one identity for errors.Is checks.
var (
	// ErrAlreadyClaimed means another instance holds an active claim.
	ErrAlreadyClaimed = errors.New("work item already claimed")
	// ErrNotClaimable means the work item is not in open status.
	ErrNotClaimable = errors.New("work item is not open")
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)
