package validate

import (
	"github.com/ejacobg/linkcheck/link"
	"github.com/google/uuid"
)

// Result pairs a link with the outcome of validating it.
type Result struct {
	Link    link.Link
	Outcome link.Outcome
}

// Counts summarises a batch.
type Counts struct {
	Valid   int
	Ignored int
	Invalid int

	// Subset of Invalid that was cancelled before completing.
	Cancelled int
}

// Results holds one Result per input link, in input order.
type Results struct {
	results []Result
	byID    map[uuid.UUID]int
}

func newResults(links []link.Link) *Results {
	r := &Results{
		results: make([]Result, len(links)),
		byID:    make(map[uuid.UUID]int, len(links)),
	}
	for i, l := range links {
		r.results[i].Link = l
		if l.ID != uuid.Nil {
			r.byID[l.ID] = i
		}
	}
	return r
}

func (r *Results) set(i int, outcome link.Outcome) {
	r.results[i].Outcome = outcome
}

// Len returns the number of results.
func (r *Results) Len() int {
	return len(r.results)
}

// All returns the results in input order.
func (r *Results) All() []Result {
	return append([]Result(nil), r.results...)
}

// Lookup returns the result of the link with the given ID.
func (r *Results) Lookup(id uuid.UUID) (Result, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Result{}, false
	}
	return r.results[i], true
}

// Outcome returns the outcome of l.
func (r *Results) Outcome(l link.Link) (link.Outcome, bool) {
	res, ok := r.Lookup(l.ID)
	return res.Outcome, ok
}

// Invalid returns the results whose outcome is invalid, in input order.
func (r *Results) Invalid() []Result {
	var out []Result
	for _, res := range r.results {
		if res.Outcome.IsInvalid() {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies the outcomes.
func (r *Results) Counts() Counts {
	var c Counts
	for _, res := range r.results {
		switch res.Outcome.Status {
		case link.StatusValid:
			c.Valid++
		case link.StatusIgnored:
			c.Ignored++
		default:
			c.Invalid++
			if res.Outcome.IsCancelled() {
				c.Cancelled++
			}
		}
	}
	return c
}
