package lightclient

import "errors"

var (
	// ErrNotFound means a referenced trusted height or authority set id has
	// no recorded hash.
	ErrNotFound = errors.New("lightclient: not found")

	// ErrInvalidRange means a non-forward or over-bound height range, a
	// target that does not exceed the current head, or an epoch end below
	// the head.
	ErrInvalidRange = errors.New("lightclient: invalid range")

	// ErrProofUnverified means the gateway holds no verified result for the
	// exact function id and canonical input derived at commit time.
	ErrProofUnverified = errors.New("lightclient: proof unverified")

	// ErrUnauthorized means the caller may not perform an administrative
	// operation.
	ErrUnauthorized = errors.New("lightclient: unauthorized")
)
