package proxy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/edvin/stackd/internal/model"
)

// CompiledRoute is one immutable, ready-to-match rule.
type CompiledRoute struct {
	Pattern  string
	Match    string
	Upstream string
	Zone     string
	Static   bool

	re    *regexp.Regexp
	index int // declaration position, breaks equal-length prefix ties
}

// Table holds the compiled match rules for one configuration generation.
// It is immutable after build; lookups need no locking and a reload swaps
// the whole table atomically.
type Table struct {
	exact    map[string]*CompiledRoute
	prefixes []*CompiledRoute // longest first, declaration order among equals
	regexes  []*CompiledRoute // declaration order
}

// NewTable compiles the route list. The list must contain a "/" prefix rule
// as the final fallback; without it some requests would have no winner.
func NewTable(routes []model.Route) (*Table, error) {
	t := &Table{exact: make(map[string]*CompiledRoute)}

	catchAll := false
	for i, r := range routes {
		cr := &CompiledRoute{
			Pattern:  r.Pattern,
			Match:    r.Match,
			Upstream: r.Upstream,
			Zone:     r.Zone,
			Static:   r.Static,
			index:    i,
		}
		switch r.Match {
		case model.MatchExact:
			if _, dup := t.exact[r.Pattern]; dup {
				return nil, fmt.Errorf("duplicate exact route %q", r.Pattern)
			}
			t.exact[r.Pattern] = cr
		case model.MatchPrefix:
			if r.Pattern == "/" {
				catchAll = true
			}
			t.prefixes = append(t.prefixes, cr)
		case model.MatchRegex:
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", r.Pattern, err)
			}
			cr.re = re
			t.regexes = append(t.regexes, cr)
		default:
			return nil, fmt.Errorf("route %q: unknown match kind %q", r.Pattern, r.Match)
		}
	}
	if !catchAll {
		return nil, fmt.Errorf("missing catch-all prefix route %q", "/")
	}

	// Longest prefix first; equal lengths keep declaration order. The tie
	// break is a documented contract, not an accident of iteration order.
	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Pattern) > len(t.prefixes[j].Pattern)
	})

	return t, nil
}

// Match returns the single winning route for a request path. Precedence:
// exact, then longest literal prefix, then regex in declaration order. The
// catch-all guarantees a non-nil result.
func (t *Table) Match(path string) *CompiledRoute {
	if r, ok := t.exact[path]; ok {
		return r
	}
	for _, r := range t.prefixes {
		if strings.HasPrefix(path, r.Pattern) {
			return r
		}
	}
	for _, r := range t.regexes {
		if r.re.MatchString(path) {
			return r
		}
	}
	return nil
}

// Routes returns the compiled rules in match-precedence order, for the
// admin surface.
func (t *Table) Routes() []*CompiledRoute {
	out := make([]*CompiledRoute, 0, len(t.exact)+len(t.prefixes)+len(t.regexes))
	exact := make([]*CompiledRoute, 0, len(t.exact))
	for _, r := range t.exact {
		exact = append(exact, r)
	}
	sort.Slice(exact, func(i, j int) bool { return exact[i].index < exact[j].index })
	out = append(out, exact...)
	out = append(out, t.prefixes...)
	out = append(out, t.regexes...)
	return out
}
