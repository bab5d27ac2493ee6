package validate

// State tracks the progress of a single check.
type State uint8

const (
	Pending State = iota
	InFlight
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done returns true for terminal states.
func (s State) Done() bool {
	return s == Completed || s == Cancelled || s == Failed
}
