// Package vaulterr defines the closed set of error kinds returned by the
// irisvault core. Callers branch on the kind with errors.Is or KindOf.
package vaulterr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Kind uint8

const (
	Unknown Kind = iota
	Unauthenticated
	AccountLocked
	Unauthorized
	DuplicateVote
	LowQuality
	IntegrityViolation
	UniquenessViolation
	StorageIO
	SchemaMigration
	NotFound
	Invalid
)

var kindNames = map[Kind]string{
	Unknown:             "unknown",
	Unauthenticated:     "unauthenticated",
	AccountLocked:       "account_locked",
	Unauthorized:        "unauthorized",
	DuplicateVote:       "duplicate_vote",
	LowQuality:          "low_quality",
	IntegrityViolation:  "integrity_violation",
	UniquenessViolation: "uniqueness_violation",
	StorageIO:           "storage_io",
	SchemaMigration:     "schema_migration",
	NotFound:            "not_found",
	Invalid:             "invalid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error implements error so a bare Kind can be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Code maps the kind onto the gRPC status code space.
func (k Kind) Code() codes.Code {
	switch k {
	case Unauthenticated:
		return codes.Unauthenticated
	case AccountLocked:
		return codes.ResourceExhausted
	case Unauthorized:
		return codes.PermissionDenied
	case DuplicateVote, UniquenessViolation:
		return codes.AlreadyExists
	case LowQuality, Invalid:
		return codes.InvalidArgument
	case IntegrityViolation:
		return codes.DataLoss
	case StorageIO:
		return codes.Unavailable
	case SchemaMigration:
		return codes.FailedPrecondition
	case NotFound:
		return codes.NotFound
	default:
		return codes.Unknown
	}
}

// Error is the concrete error carried through the core.
type Error struct {
	Kind Kind
	Op   string // e.g. "service.CastVote"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	if e.Op != "" {
		s = e.Op + ": "
	}
	s += e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target, so errors.Is(err, vaulterr.DuplicateVote) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// GRPCStatus lets status.FromError translate the error without a switch.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Error())
}

// E builds an *Error. If err already carries a kind and kind is Unknown, the
// existing kind is kept.
func E(kind Kind, op string, err error) error {
	if kind == Unknown {
		kind = KindOf(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error without a wrapped cause.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Has reports whether err carries any vault kind.
func Has(err error) bool {
	return KindOf(err) != Unknown
}
