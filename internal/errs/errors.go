package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the caller layer.
type Kind int

const (
	Internal Kind = iota
	Wallet
	Transaction
	Rpc
	Serialization
	Config
	Storage
	Unauthorized
	InvalidKeypair
	Network
	Parse
	NotFound
)

var kindNames = map[Kind]string{
	Internal:       "internal",
	Wallet:         "wallet",
	Transaction:    "transaction",
	Rpc:            "rpc",
	Serialization:  "serialization",
	Config:         "config",
	Storage:        "storage",
	Unauthorized:   "unauthorized",
	InvalidKeypair: "invalid keypair",
	Network:        "network",
	Parse:          "parse",
	NotFound:       "not found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind when the target carries no
// operation or cause, so errors.Is(err, errs.New(errs.NotFound)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New returns a bare error of the given kind, usable as an errors.Is target.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// E wraps err with a kind and operation. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

var rateLimitMarkers = []string{"Too many requests", "too many requests", "429"}

// IsRateLimited inspects the error text for rate-limit markers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
