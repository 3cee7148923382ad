package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath marks a path query that does not parse in the accepted
// XPath subset. The HTTP layer maps it to an INVALID_XPATH response.
var ErrInvalidPath = errors.New("invalid path expression")

// pathStep is one "//Name[@attr="value"]" step.
type pathStep struct {
	name  string
	attrs map[string]string
}

// parsePath parses the accepted XPath subset: descendant steps
// ("//Name"), each optionally carrying attribute predicates
// ([@attr="value"]). Anything else is rejected.
func parsePath(expr string) ([]pathStep, error) {
	if expr == "" || !strings.HasPrefix(expr, "//") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, expr)
	}

	var steps []pathStep
	rest := expr
	for rest != "" {
		if !strings.HasPrefix(rest, "//") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, expr)
		}
		rest = rest[2:]

		// Step name runs to the next '[' or "//".
		end := len(rest)
		if i := strings.IndexAny(rest, "[/"); i >= 0 {
			end = i
		}
		name := rest[:end]
		if name == "" {
			return nil, fmt.Errorf("%w: empty step in %q", ErrInvalidPath, expr)
		}
		rest = rest[end:]

		step := pathStep{name: name, attrs: make(map[string]string)}
		for strings.HasPrefix(rest, "[") {
			close := strings.Index(rest, "]")
			if close < 0 {
				return nil, fmt.Errorf("%w: unclosed predicate in %q", ErrInvalidPath, expr)
			}
			pred := rest[1:close]
			rest = rest[close+1:]

			attr, value, err := parsePredicate(pred)
			if err != nil {
				return nil, fmt.Errorf("%w: %q in %q", ErrInvalidPath, pred, expr)
			}
			step.attrs[attr] = value
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parsePredicate parses `@attr="value"` (single quotes also accepted).
func parsePredicate(pred string) (attr, value string, err error) {
	if !strings.HasPrefix(pred, "@") {
		return "", "", errors.New("predicate must start with @")
	}
	attr, quoted, ok := strings.Cut(pred[1:], "=")
	if !ok || attr == "" {
		return "", "", errors.New("predicate missing =")
	}
	if len(quoted) < 2 {
		return "", "", errors.New("predicate value not quoted")
	}
	q := quoted[0]
	if (q != '"' && q != '\'') || quoted[len(quoted)-1] != q {
		return "", "", errors.New("predicate value not quoted")
	}
	return attr, quoted[1 : len(quoted)-1], nil
}

// ResolvePath returns the dataitem ids whose ancestor chain matches the
// path expression, in discovery order, restricted to the given device
// UUIDs (all devices when empty). Unknown attribute predicates match
// nothing; only malformed expressions are errors.
func (r *Registry) ResolvePath(expr string, uuids []string) ([]string, error) {
	steps, err := parsePath(expr)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(uuids) == 0 {
		uuids = r.order
	}
	var ids []string
	for _, uuid := range uuids {
		for _, id := range r.perDevice[uuid] {
			idx := r.byID[id]
			if idx != nil && chainMatches(idx.chain, steps) {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// PathValid reports whether the expression parses and matches at least
// one dataitem.
func (r *Registry) PathValid(expr string, uuids []string) bool {
	ids, err := r.ResolvePath(expr, uuids)
	return err == nil && len(ids) > 0
}

// chainMatches checks that the steps appear in order along the ancestor
// chain: each step matches a strictly later chain element than the
// previous one (the descendant axis).
func chainMatches(chain []pathElem, steps []pathStep) bool {
	pos := 0
	for _, step := range steps {
		found := false
		for ; pos < len(chain); pos++ {
			if elemMatches(chain[pos], step) {
				pos++
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func elemMatches(elem pathElem, step pathStep) bool {
	if step.name != "*" && step.name != elem.name {
		return false
	}
	for attr, want := range step.attrs {
		if got, ok := elem.attrs[attr]; !ok || got != want {
			return false
		}
	}
	return true
}
