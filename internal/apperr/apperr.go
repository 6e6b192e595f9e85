// Package apperr defines the error kinds reported at the orchestration
// boundary. Every failure surfaced to a caller carries one Kind, a
// human-readable message and, when there is one, a remedy.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindUnknownAgent        Kind = "unknown_agent"
	KindTimeout             Kind = "timeout"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindParse               Kind = "parse_error"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal"
)

// Sentinels for errors.Is; matching compares kinds only.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrUnknownAgent        = &Error{Kind: KindUnknownAgent}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrParse               = &Error{Kind: KindParse}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable}
)

type Error struct {
	Kind    Kind
	Message string
	Remedy  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithRemedy returns a copy of e carrying the given remedy.
func (e *Error) WithRemedy(remedy string) *Error {
	c := *e
	c.Remedy = remedy
	return &c
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

func Parse(err error, msg string) *Error {
	return Wrap(KindParse, err, msg).WithRemedy("retry the request; the model returned an unexpected format")
}

func UnknownAgent(name string) *Error {
	return Newf(KindUnknownAgent, "unknown agent %q", name).WithRemedy("list available agents with `studioflow agents`")
}

// KindOf reports the kind of err. Context errors map to timeout and
// cancelled; anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// RemedyOf returns the first remedy found in err's chain.
func RemedyOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Remedy != "" {
			return e.Remedy
		}
		err = e.Err
	}
	return ""
}
