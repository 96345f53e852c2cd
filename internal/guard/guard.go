// ABOUTME: Route classification and access decisions for game pages
// ABOUTME: Pure functions of path, session presence and character presence

package guard

import (
	"net/url"
	"strings"

	"github.com/markalston/novorio/internal/config"
)

// Class is a route's access requirement.
type Class int

const (
	Public Class = iota
	AuthRequired
	AuthAndEntityRequired
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case AuthRequired:
		return "auth_required"
	case AuthAndEntityRequired:
		return "auth_and_entity_required"
	default:
		return "unknown"
	}
}

// Reason explains a redirect.
type Reason string

const (
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
	ReasonEntityRequired       Reason = "entity_required"
	ReasonFallbackTimeout      Reason = "fallback_timeout"
)

// Redirect sends the user elsewhere, remembering where they came from.
type Redirect struct {
	Path   string
	From   string
	Reason Reason
}

// URL renders the redirect target with the redirected/from markers.
func (r Redirect) URL() string {
	if r.From == "" {
		return r.Path
	}
	return r.Path + "?redirected=true&from=" + url.QueryEscape(r.From)
}

// Decision is either Allow or a Redirect.
type Decision struct {
	Allow    bool
	Redirect *Redirect
}

var allow = Decision{Allow: true}

type route struct {
	prefix string
	class  Class
}

// Guard holds the route table fixed at startup.
type Guard struct {
	routes      []route
	authPath    string
	landingPath string
	entityPath  string
}

// New builds a guard from the configured route table.
func New(r config.Routes) *Guard {
	g := &Guard{
		authPath:    r.AuthPath,
		landingPath: r.LandingPath,
		entityPath:  r.EntityPath,
	}
	add := func(paths []string, class Class) {
		for _, p := range paths {
			g.routes = append(g.routes, route{prefix: normalize(p), class: class})
		}
	}
	add(r.Public, Public)
	add(r.AuthRequired, AuthRequired)
	add(r.EntityRequired, AuthAndEntityRequired)
	return g
}

func normalize(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// isStatic matches framework assets, API calls and files with extensions.
func isStatic(path string) bool {
	for _, prefix := range []string{"/_next", "/api", "/static"} {
		if segmentMatch(path, prefix) {
			return true
		}
	}
	last := path[strings.LastIndex(path, "/")+1:]
	return strings.Contains(last, ".")
}

// segmentMatch reports whether path equals prefix or continues it at a
// segment boundary. "/" only matches itself.
func segmentMatch(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return false
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Classify returns the class of the longest matching route. Unknown paths
// require authentication.
func (g *Guard) Classify(path string) Class {
	path = normalize(path)
	if isStatic(path) {
		return Public
	}

	class, best := AuthRequired, -1
	for _, r := range g.routes {
		if !segmentMatch(path, r.prefix) {
			continue
		}
		if n := len(r.prefix); n > best || (n == best && r.class > class) {
			class, best = r.class, n
		}
	}

	// The entity-creation page must stay reachable without an entity.
	if class == AuthAndEntityRequired && g.entityPath != "" && segmentMatch(path, normalize(g.entityPath)) {
		class = AuthRequired
	}
	return class
}

// Authorize decides whether path may be shown.
func (g *Guard) Authorize(path string, authenticated, hasEntity bool) Decision {
	path = normalize(path)
	switch g.Classify(path) {
	case Public:
		if authenticated && g.authPath != "" && path == normalize(g.authPath) {
			return Decision{Redirect: &Redirect{Path: g.landingPath, Reason: ReasonAlreadyAuthenticated}}
		}
		return allow
	case AuthRequired:
		if !authenticated {
			return g.toAuth(path)
		}
		return allow
	default:
		if !authenticated {
			return g.toAuth(path)
		}
		if !hasEntity {
			return Decision{Redirect: &Redirect{Path: g.entityPath, From: path, Reason: ReasonEntityRequired}}
		}
		return allow
	}
}

func (g *Guard) toAuth(from string) Decision {
	return Decision{Redirect: &Redirect{Path: g.authPath, From: from, Reason: ReasonUnauthenticated}}
}
