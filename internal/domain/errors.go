package domain

import "errors"

var (
	// ErrUnauthorized is the single outcome returned for every grant
	// redemption failure. Granular reasons (expired, disabled, wrong path,
	// bad token) must not reach the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken covers any capability token that fails decoding,
	// decryption, or deserialization.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound signals a missing row independent of driver specifics.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a unique-constraint violation, used to detect
	// duplicate webhook deliveries racing on insert.
	ErrConflict = errors.New("conflict")

	// ErrTokenExpired signals the upstream pledge API rejected the stored
	// OAuth access token.
	ErrTokenExpired = errors.New("access token expired")
)
