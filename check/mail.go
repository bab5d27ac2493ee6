package check

import (
	"context"

	"github.com/ejacobg/linkcheck/link"
)

// MailChecker validates mailto: links. Only the address syntax is checked;
// no mail server is contacted.
type MailChecker struct{}

// Check implements Checker.
func (MailChecker) Check(_ context.Context, cat link.Category) link.Outcome {
	if !cat.AddressOK {
		return link.Invalid(link.Reason{Kind: link.MalformedAddress}, cat.Address)
	}
	return link.Valid()
}
