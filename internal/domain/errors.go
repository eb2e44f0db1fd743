package domain

import "errors"

var (
	// ErrNetwork covers transport failures, timeouts and non-200 feed responses.
	ErrNetwork = errors.New("network error")
	// ErrDataShape means a feed document is missing its expected structure.
	ErrDataShape = errors.New("unexpected data shape")
	// ErrRender means the scene could not be assembled.
	ErrRender = errors.New("render failed")
	// ErrInvalidWindow rejects a time window outside hour/day/week/month.
	ErrInvalidWindow = errors.New("invalid time window")
	// ErrSuperseded marks a render discarded because a newer one started.
	ErrSuperseded = errors.New("render superseded")
)
