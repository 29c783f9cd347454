// Package rerr implements the error taxonomy described in spec.md §7:
// typed error kinds that carry the process exit code upstream rsync
// would use for the same failure, so a top-level coordinator can
// translate an error into an exit status without re-deriving it.
package rerr

import "fmt"

// Kind classifies an error by the subsystem that raised it. It is not
// meant to be exhaustive of Go's error taxonomy, only of the
// exit-code-relevant buckets from spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindNegotiation
	KindFraming
	KindSignatureDelta
	KindFileList
	KindIO
	KindMetadata
	KindFilter
	KindTimeout
	KindStopAt
	KindAuth
	KindPartial
	KindMaxDelete
)

// ExitCode mirrors upstream rsync's exit codes exactly (spec.md §6).
func (k Kind) ExitCode() int {
	switch k {
	case KindNegotiation:
		return 2
	case KindFraming:
		return 14
	case KindSignatureDelta:
		return 12
	case KindFileList:
		return 1
	case KindIO:
		return 23
	case KindMetadata:
		return 0 // never fatal
	case KindFilter:
		return 1
	case KindTimeout:
		return 30
	case KindStopAt:
		return 0 // graceful
	case KindAuth:
		return 5
	case KindPartial:
		return 23
	case KindMaxDelete:
		return 25
	default:
		return 1
	}
}

// Error wraps an underlying error with a Kind so the coordinator can
// recover the exit code with errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap annotates err with a Kind and an operation name. If err is nil,
// Wrap returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// ExitCode extracts the exit code from err, defaulting to 1 (the
// generic syntax/usage error code) when err does not carry a Kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if as(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}

// as walks err's Unwrap chain by hand (without errors.As) and stores
// the first *Error it finds in target.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
