// Package check contains the checkers that decide whether a classified link
// target is valid.
package check

import (
	"context"

	"github.com/ejacobg/linkcheck/link"
)

// Checker is implemented by objects that can validate a link category.
// Checkers never fail: every problem is reported through the Outcome.
type Checker interface {
	Check(ctx context.Context, cat link.Category) link.Outcome
}

// CheckerFunc is an adapter to allow the use of plain functions as Checker
// instances.
type CheckerFunc func(context.Context, link.Category) link.Outcome

// Check calls f(ctx, cat).
func (f CheckerFunc) Check(ctx context.Context, cat link.Category) link.Outcome {
	return f(ctx, cat)
}

// Table dispatches each category to the Checker registered for its Kind.
type Table map[link.Kind]Checker

// Check implements Checker.
func (t Table) Check(ctx context.Context, cat link.Category) link.Outcome {
	checker, ok := t[cat.Kind]
	if !ok || checker == nil {
		return link.Invalid(link.Reason{Kind: link.Unresolvable}, "no checker for "+cat.Kind.String()+" links")
	}
	return checker.Check(ctx, cat)
}

// contextOutcome maps the error of an expired ctx to an outcome.
func contextOutcome(ctx context.Context) link.Outcome {
	if ctx.Err() == context.DeadlineExceeded {
		return link.Invalid(link.Reason{Kind: link.Timeout}, ctx.Err().Error())
	}
	return link.Invalid(link.Reason{Kind: link.Cancelled}, ctx.Err().Error())
}
