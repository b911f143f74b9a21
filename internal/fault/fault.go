package fault

import "errors"

// Kind classifies an engine error by what the caller should do about it.
type Kind int

const (
	Unknown Kind = iota
	// Authorization means the caller lacks the required role.
	Authorization
	// State covers unknown tranches, paused issuance and similar conditions.
	State
	// Insufficiency covers balances, allowances, reserves and caller bounds.
	Insufficiency
	// Policy covers limits and eligibility that may pass on a later attempt.
	Policy
	// Arithmetic means a fixed-point overflow or a zero divisor.
	Arithmetic
)

func (k Kind) String() string {
	switch k {
	case Authorization:
		return "authorization"
	case State:
		return "state"
	case Insufficiency:
		return "insufficiency"
	case Policy:
		return "policy"
	case Arithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Error is a sentinel error carrying a Kind.
type Error struct {
	kind Kind
	msg  string
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return Unknown
}

// Retryable reports whether resubmitting later may succeed.
func Retryable(err error) bool {
	return KindOf(err) == Policy
}
