/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package router

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
)

// Error indicates a routing failure: a bad route registration or a URL that
// could not be built from a registered template.
type Error struct {
	msg string
}

// NewError returns a new routing error.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// NewErrorf returns a new routing error.
func NewErrorf(format string, a ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, a...)}
}

func (e *Error) Error() string {
	return e.msg
}

var variablePattern = regexp.MustCompile(`^\{([a-zA-Z_][a-zA-Z0-9_]*)\}$`)

// Match is the result of routing a path: the name of the matched route and the
// values bound to its template variables.
type Match struct {
	Name   string
	Values map[string]string
}

type route struct {
	name      string
	template  string
	variables []string
	literals  int
	muxRoute  *mux.Route
}

// Router matches request paths against URI templates and builds paths from the
// same templates, so that dispatch and URL minting never diverge.
type Router struct {
	mux    *mux.Router
	routes map[string]*route
	order  []*route
}

// New returns a new router.
func New() *Router {
	return &Router{
		mux:    mux.NewRouter(),
		routes: make(map[string]*route),
	}
}

// Add parses the URI template, registers a route under the given name and returns
// the names of the template variables. Template variables are simple RFC 6570
// expansions ({var}), each matching a single path segment.
func (r *Router) Add(template, name string) ([]string, error) {
	if _, exists := r.routes[name]; exists {
		return nil, NewErrorf("duplicate route name: %s", name)
	}

	variables, literals, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}

	muxRoute := r.mux.NewRoute().Name(name).Path(template)
	if err := muxRoute.GetError(); err != nil {
		return nil, NewErrorf("invalid template [%s]: %s", template, err)
	}

	rt := &route{
		name:      name,
		template:  template,
		variables: variables,
		literals:  literals,
		muxRoute:  muxRoute,
	}

	r.routes[name] = rt
	r.order = append(r.order, rt)

	return variables, nil
}

// Has returns true if a route with the given name is registered.
func (r *Router) Has(name string) bool {
	_, exists := r.routes[name]

	return exists
}

// Route matches the given path against the registered templates. When multiple
// templates match, the one with the most literal characters wins. Matching is
// case-sensitive and trailing slashes are significant. Nil is returned if no
// template matches.
func (r *Router) Route(path string) *Match {
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Path: path},
	}

	var best *route

	var bestValues map[string]string

	for _, rt := range r.order {
		var m mux.RouteMatch

		if !rt.muxRoute.Match(req, &m) {
			continue
		}

		if best == nil || rt.literals > best.literals {
			best = rt
			bestValues = m.Vars
		}
	}

	if best == nil {
		return nil
	}

	if bestValues == nil {
		bestValues = map[string]string{}
	}

	return &Match{
		Name:   best.name,
		Values: bestValues,
	}
}

// Build substitutes the given values into the named route's template and returns
// the resulting path with each value percent-encoded. Returns false if the route
// is not registered or any template variable is missing from the values.
func (r *Router) Build(name string, values map[string]string) (string, bool) {
	rt, exists := r.routes[name]
	if !exists {
		return "", false
	}

	pairs := make([]string, 0, len(rt.variables)*2)

	for _, variable := range rt.variables {
		value, ok := values[variable]
		if !ok {
			return "", false
		}

		pairs = append(pairs, variable, value)
	}

	u, err := rt.muxRoute.URLPath(pairs...)
	if err != nil {
		return "", false
	}

	return u.EscapedPath(), true
}

// parseTemplate validates the template and returns its variable names along with
// the number of literal (non-variable) characters.
func parseTemplate(template string) ([]string, int, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, 0, NewErrorf("template must begin with '/': %s", template)
	}

	variables := []string{}
	seen := make(map[string]struct{})
	literals := 0

	remaining := template

	for {
		start := strings.Index(remaining, "{")
		if start < 0 {
			if strings.Contains(remaining, "}") {
				return nil, 0, NewErrorf("unbalanced '}' in template: %s", template)
			}

			literals += len(remaining)

			break
		}

		literal := remaining[:start]
		if strings.Contains(literal, "}") {
			return nil, 0, NewErrorf("unbalanced '}' in template: %s", template)
		}

		literals += len(literal)

		end := strings.Index(remaining[start:], "}")
		if end < 0 {
			return nil, 0, NewErrorf("unbalanced '{' in template: %s", template)
		}

		expansion := remaining[start : start+end+1]

		m := variablePattern.FindStringSubmatch(expansion)
		if m == nil {
			return nil, 0, NewErrorf("invalid variable expansion [%s] in template: %s", expansion, template)
		}

		variable := m[1]

		if _, dup := seen[variable]; dup {
			return nil, 0, NewErrorf("duplicate variable [%s] in template: %s", variable, template)
		}

		seen[variable] = struct{}{}
		variables = append(variables, variable)

		remaining = remaining[start+end+1:]
	}

	return variables, literals, nil
}
