package screen

import (
	"context"
	"errors"
	"fmt"

	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/validate"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorCanceled     ErrorCode = "CANCELED"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("screen: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("screen: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// PlaybackError reports a local media failure. It never involves the AI service.
type PlaybackError struct {
	Op  string
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("screen: playback %s: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Classify maps a gateway failure onto a screen error code.
func Classify(op string, err error) *Error {
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		return newError(ErrorInvalidInput, op+"_validation", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrorCanceled, op+"_canceled", err)
	}
	var te *aiservice.TransportError
	if errors.As(err, &te) {
		if te.HTTPStatusCode() == 429 {
			return newError(ErrorRateLimited, op+"_rate_limited", err)
		}
		return newError(ErrorUpstream, op+"_error", err)
	}
	return newError(ErrorInternal, op+"_unexpected", err)
}

// DisplayMessage is the inline text shown for a failed call.
func DisplayMessage(err error) string {
	var te *aiservice.TransportError
	if errors.As(err, &te) {
		return te.Message()
	}
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	return err.Error()
}
