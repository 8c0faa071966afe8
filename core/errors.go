package core

import "errors"

var (
	// ErrMalformedEvent marks an input record that is skipped and counted
	ErrMalformedEvent = errors.New("malformed event")
	// ErrInvalidConfig marks a catalog or configuration problem that is fatal at load
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrContractViolation marks an internal invariant failure between stages
	ErrContractViolation = errors.New("contract violation")
	// ErrInvalidHorizon is returned for a negative evaluation horizon
	ErrInvalidHorizon = errors.New("invalid horizon")
)
