package domain

import "errors"

var (
	// ErrRateLimited is returned by chat capabilities when the upstream
	// rejected the call with a rate-limit status.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable means the capability is not configured, usually because
	// its credential is missing.
	ErrUnavailable = errors.New("capability unavailable")
)
