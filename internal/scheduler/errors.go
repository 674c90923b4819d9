package scheduler

import "errors"

var (
	// ErrNoTargets is returned when a post names no target accounts.
	ErrNoTargets = errors.New("post has no targets")

	// ErrBodyTooLong is returned when the body exceeds a target
	// platform's documented length limit.
	ErrBodyTooLong = errors.New("post body exceeds platform limit")

	// ErrInvalidTransition is returned when a post's current status does
	// not allow the requested transition, e.g. cancelling a post whose
	// dispatch already began.
	ErrInvalidTransition = errors.New("post status does not allow this transition")
)
