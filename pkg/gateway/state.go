package gateway

type State int

const (
	PendingToken State = iota
	CountingDown
	AwaitingVerification
	Verified
	Resolving
	Redirected
	Failed
)

func (s State) String() string {
	switch s {
	case PendingToken:
		return "pending_token"
	case CountingDown:
		return "counting_down"
	case AwaitingVerification:
		return "awaiting_verification"
	case Verified:
		return "verified"
	case Resolving:
		return "resolving"
	case Redirected:
		return "redirected"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Redirected || s == Failed
}
