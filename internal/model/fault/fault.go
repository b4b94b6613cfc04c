// Package fault defines the closed error taxonomy shared by the external
// service adapters. Every adapter failure is one of four kinds so the turn
// driver and HTTP layer can branch without inspecting vendor error types.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter failure.
type Kind string

const (
	// Auth means the upstream rejected our credential (HTTP 401/403).
	Auth Kind = "auth"
	// Quota means a rate limit or quota was exhausted (HTTP 429).
	Quota Kind = "quota"
	// Remote covers any other non-2xx response or transport failure.
	Remote Kind = "remote"
	// EmptyInput means a turn was requested with no audio and no text.
	EmptyInput Kind = "empty_input"
)

// Error carries a classified failure from one adapter operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with a fixed message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromStatus maps an upstream HTTP status to the taxonomy:
// 401/403 auth, 429 quota, everything else remote.
func FromStatus(op string, status int, detail string) *Error {
	kind := Remote
	switch status {
	case 401, 403:
		kind = Auth
	case 429:
		kind = Quota
	}
	msg := fmt.Sprintf("upstream returned HTTP %d", status)
	if detail != "" {
		msg = fmt.Sprintf("upstream returned HTTP %d: %s", status, detail)
	}
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// KindOf extracts the kind from an error chain. Unclassified non-nil errors
// report Remote; nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Remote
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
