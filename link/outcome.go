package link

import "fmt"

// ReasonKind enumerates the causes of an invalid outcome.
type ReasonKind uint8

const (
	NoReason ReasonKind = iota

	// Filesystem failures.
	NotFound
	PermissionDenied
	MissingFragment

	// Network failures.
	Unreachable
	Timeout
	TooManyRedirects
	BadStatusCode

	// Mail address syntax failures.
	MalformedAddress

	// The target could not be classified or resolved.
	Unresolvable

	// The check was aborted by the coordinator (batch timeout or caller
	// cancellation) before it completed.
	Cancelled
)

var reasonNames = map[ReasonKind]string{
	NoReason:         "none",
	NotFound:         "not found",
	PermissionDenied: "permission denied",
	MissingFragment:  "missing fragment",
	Unreachable:      "unreachable",
	Timeout:          "timeout",
	TooManyRedirects: "too many redirects",
	BadStatusCode:    "bad status",
	MalformedAddress: "malformed address",
	Unresolvable:     "unresolvable",
	Cancelled:        "cancelled",
}

func (k ReasonKind) String() string {
	if name, ok := reasonNames[k]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", uint8(k))
}

// Reason describes why a link is invalid. StatusCode is only set for
// BadStatusCode reasons.
type Reason struct {
	Kind       ReasonKind
	StatusCode int
}

// BadStatus returns a Reason for a server that answered with an unexpected
// HTTP status code.
func BadStatus(code int) Reason {
	return Reason{Kind: BadStatusCode, StatusCode: code}
}

func (r Reason) String() string {
	if r.Kind == BadStatusCode {
		return fmt.Sprintf("%s (%d)", r.Kind, r.StatusCode)
	}
	return r.Kind.String()
}

// Status is the verdict part of an Outcome.
type Status uint8

const (
	StatusValid Status = iota
	StatusIgnored
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}

// Outcome is the result of validating a link target. Outcomes are values;
// links that share a Key receive identical copies.
type Outcome struct {
	Status Status

	// Only set for invalid outcomes.
	Reason Reason

	// Why the link was ignored, or extra detail about a failure.
	Note string
}

// Valid returns a successful outcome.
func Valid() Outcome {
	return Outcome{Status: StatusValid}
}

// Ignore returns an outcome for a link that was deliberately not checked.
func Ignore(why string) Outcome {
	return Outcome{Status: StatusIgnored, Note: why}
}

// Invalid returns a failed outcome with the given reason and detail note.
func Invalid(r Reason, note string) Outcome {
	return Outcome{Status: StatusInvalid, Reason: r, Note: note}
}

// IsValid returns true for valid outcomes.
func (o Outcome) IsValid() bool { return o.Status == StatusValid }

// IsInvalid returns true for invalid outcomes.
func (o Outcome) IsInvalid() bool { return o.Status == StatusInvalid }

// IsCancelled returns true if the outcome reflects a coordinator-side
// abort rather than a property of the target.
func (o Outcome) IsCancelled() bool {
	return o.Status == StatusInvalid && o.Reason.Kind == Cancelled
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusInvalid:
		if o.Note != "" {
			return fmt.Sprintf("invalid: %s: %s", o.Reason, o.Note)
		}
		return "invalid: " + o.Reason.String()
	case StatusIgnored:
		if o.Note != "" {
			return "ignored: " + o.Note
		}
		return "ignored"
	default:
		return "valid"
	}
}
