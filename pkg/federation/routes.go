/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/uritemplate"
	"github.com/meridianfed/meridian/pkg/vocab"
)

// Names of the standard routes of a federated service. A route is registered
// on the Builder together with its URI template. The Context URI methods
// build URLs for a route, and Handle matches incoming request paths back to
// the route that serves them.
const (
	// RouteNodeInfo serves the versioned NodeInfo documents.
	RouteNodeInfo = "nodeInfo"

	// RouteActor serves the document of a local actor.
	RouteActor = "actor"

	// RouteInbox accepts activities addressed to a single local actor.
	RouteInbox = "inbox"

	// RouteSharedInbox accepts activities addressed to any local actor.
	RouteSharedInbox = "sharedInbox"

	// RouteOutbox serves the collection of activities published by an actor.
	RouteOutbox = "outbox"

	// RouteFollowing serves the collection of actors that an actor follows.
	RouteFollowing = "following"

	// RouteFollowers serves the collection of actors that follow an actor.
	RouteFollowers = "followers"

	// RouteLiked serves the collection of objects that an actor has liked.
	RouteLiked = "liked"

	// RouteFeatured serves the collection of objects pinned by an actor.
	RouteFeatured = "featured"

	// RouteFeaturedTags serves the collection of tags featured by an actor.
	RouteFeaturedTags = "featuredTags"
)

// HandleVar is the name of the template variable that captures the handle
// (preferred username) of a local actor.
const HandleVar = "handle"

// ObjectRoute returns the name of the route that serves dereferenceable
// objects of the given type.
func ObjectRoute(objectType vocab.Type) string {
	return "object:" + string(objectType)
}

type route struct {
	name     string
	tmpl     *uritemplate.Template
	literals int
}

// routeTable maps route names to URI templates. The Builder is its only
// writer; once the federation is built the table is read-only.
type routeTable struct {
	byName     map[string]*route
	bySkeleton map[string]*route
	matchOrder []*route
}

func newRouteTable() *routeTable {
	return &routeTable{
		byName:     make(map[string]*route),
		bySkeleton: make(map[string]*route),
	}
}

func (t *routeTable) add(name string, tmpl *uritemplate.Template) error {
	if _, ok := t.byName[name]; ok {
		return fmt.Errorf("route [%s] is already registered", name)
	}

	skeleton := tmpl.Skeleton()

	if other, ok := t.bySkeleton[skeleton]; ok {
		return fmt.Errorf("route [%s] is ambiguous with route [%s]: templates [%s] and [%s] capture the same URL shapes",
			name, other.name, tmpl.String(), other.tmpl.String())
	}

	r := &route{
		name:     name,
		tmpl:     tmpl,
		literals: len(skeleton) - 2*strings.Count(skeleton, "{}"),
	}

	t.byName[name] = r
	t.bySkeleton[skeleton] = r
	t.matchOrder = append(t.matchOrder, r)

	return nil
}

// freeze orders the routes for matching. A capture is greedy and does not
// stop at a path separator, so the route with the most literal text must be
// tried first: /users/{handle}/inbox wins over /users/{handle} for the path
// /users/alice/inbox. Routes with the same amount of literal text keep their
// registration order.
func (t *routeTable) freeze() {
	sort.SliceStable(t.matchOrder, func(i, j int) bool {
		return t.matchOrder[i].literals > t.matchOrder[j].literals
	})
}

func (t *routeTable) get(name string) (*route, bool) {
	r, ok := t.byName[name]

	return r, ok
}

// match returns the name of the route that matches the given path, along with
// the captured variables. Percent triplets in captured values are decoded.
func (t *routeTable) match(path string) (string, uritemplate.Values, bool) {
	for _, r := range t.matchOrder {
		if vals, ok := r.tmpl.Match(path, uritemplate.WithEncoding(uritemplate.EncodingCooked)); ok {
			return r.name, vals, true
		}
	}

	return "", nil, false
}

// expand builds the URL of the named route from the given variables. The
// result is resolved against the given base so that it always carries the
// canonical scheme and host.
func (t *routeTable) expand(name string, vars uritemplate.Values, base *url.URL) (*url.URL, error) {
	r, ok := t.byName[name]
	if !ok {
		return nil, merrors.Newf(merrors.KindRouting, "no template registered for route [%s]", name)
	}

	expanded, err := r.tmpl.Expand(vars)
	if err != nil {
		return nil, merrors.New(merrors.KindRouting, fmt.Errorf("expand template for route [%s]: %w", name, err))
	}

	ref, err := url.Parse(expanded)
	if err != nil {
		return nil, merrors.New(merrors.KindRouting, fmt.Errorf("parse expanded template for route [%s]: %w", name, err))
	}

	u := base.ResolveReference(ref)

	u.Scheme = base.Scheme
	u.Host = base.Host

	return u, nil
}

func stringVar(vals uritemplate.Values, name string) string {
	return vals[name].String()
}

func plainVars(vals uritemplate.Values) map[string]string {
	vars := make(map[string]string, len(vals))

	for name, value := range vals {
		vars[name] = value.String()
	}

	return vars
}
