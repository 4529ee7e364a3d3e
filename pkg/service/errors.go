package service

import "errors"

var (
	// ErrValidation indicates malformed or out-of-policy input.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound covers both an unknown code and a code owned by someone
	// else; the two are deliberately indistinguishable to callers.
	ErrNotFound = errors.New("share link not found")
	// ErrGone indicates the link exists but has been deactivated.
	ErrGone = errors.New("share link disabled")
	// ErrPasswordRequired indicates a protected link was read without a password.
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidPassword indicates the supplied password did not verify.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrRateLimited indicates the caller exceeded the public read quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrLocked indicates the link is under brute-force lockout.
	ErrLocked = errors.New("too many failed password attempts")
	// ErrCodeGeneration indicates the bounded code-collision retries ran out.
	ErrCodeGeneration = errors.New("could not generate a unique code")
	// ErrUpstream indicates the core API failed with no cached fallback.
	ErrUpstream = errors.New("upstream unavailable")
)
