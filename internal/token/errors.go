package token

import (
	"errors"
	"fmt"
)

// Kind classifies a verification failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalid covers bad signatures, wrong algorithm, malformed tokens
	// and claims that do not belong to the expected token class.
	KindInvalid
	// KindExpired means the signature checked out but exp has passed.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	}
	return "unknown"
}

// Error is returned by every Verify* method.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return "token " + e.Kind.String()
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches sentinels of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalid = &Error{Kind: KindInvalid}
	ErrExpired = &Error{Kind: KindExpired}
)

// KindOf returns the kind of a verification error, KindUnknown for anything else.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

func invalid(cause error) error { return &Error{Kind: KindInvalid, cause: cause} }
