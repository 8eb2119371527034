package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState             = errors.New("invalid state")
	ErrNotFound                 = errors.New("not found")
	ErrAlreadyConnected         = errors.New("already connected")
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")
	ErrEngine                   = errors.New("engine error")
	ErrNotAuthorized            = errors.New("not authorized")
	ErrBadRequest               = errors.New("bad request")
	ErrRateLimited              = errors.New("rate limited")
)

// EngineError wraps a failure reported by the media engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

func WrapEngine(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// Code maps err to the code sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyConnected):
		return "AlreadyConnected"
	case errors.Is(err, ErrIncompatibleCapabilities):
		return "IncompatibleCapabilities"
	case errors.Is(err, ErrEngine):
		return "EngineError"
	case errors.Is(err, ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, ErrBadRequest):
		return "BadRequest"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	default:
		return "Internal"
	}
}
