package extract

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// bluemonday policies are not safe for concurrent use, so each caller
// borrows one from the pool.
var policyPool = sync.Pool{
	New: func() interface{} {
		return bluemonday.StrictPolicy()
	},
}

// plainText strips any markup from s and collapses whitespace.
func plainText(s string) string {
	if s == "" {
		return ""
	}

	policy := policyPool.Get().(*bluemonday.Policy)
	text := policy.Sanitize(s)
	policyPool.Put(policy)

	return strings.TrimSpace(html.UnescapeString(repeatedSpaceRegex.ReplaceAllString(text, " ")))
}
