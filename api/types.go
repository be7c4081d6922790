// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// Interest is a set of readiness conditions a descriptor is registered for.
type Interest uint8

const (
	InterestNone  Interest = 0
	InterestRead  Interest = 1 << 0
	InterestWrite Interest = 1 << 1
	// InterestError is only ever reported, never registered.
	InterestError Interest = 1 << 2
)

func (i Interest) String() string {
	switch i {
	case InterestNone:
		return "none"
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestRead | InterestWrite:
		return "read|write"
	}
	s := ""
	if i&InterestRead != 0 {
		s += "read|"
	}
	if i&InterestWrite != 0 {
		s += "write|"
	}
	if i&InterestError != 0 {
		s += "error|"
	}
	if s == "" {
		return "unknown"
	}
	return s[:len(s)-1]
}

// Outcome classifies a parsed request and selects the handler variant.
type Outcome int

const (
	OutcomeIncomplete Outcome = iota
	OutcomeOK
	OutcomeNotFound
	OutcomeCacheable
	OutcomeInternalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeCacheable:
		return "cacheable"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// WriteResult is returned by Handler.Write.
type WriteResult int

const (
	// NotYetFinished asks to be called again on the next writable event.
	NotYetFinished WriteResult = iota + 1
	// Finished means the whole response has been flushed (or the peer is gone).
	Finished
)

func (r WriteResult) String() string {
	switch r {
	case NotYetFinished:
		return "not_yet_finished"
	case Finished:
		return "finished"
	default:
		return "invalid"
	}
}

// HandlerKind tags the active handler variant of a connection.
type HandlerKind int

const (
	KindNone HandlerKind = iota
	KindRaw
	KindApplication
	KindCache
)

func (k HandlerKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindApplication:
		return "application"
	case KindCache:
		return "cache"
	default:
		return "none"
	}
}
