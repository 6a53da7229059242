// Package guard decides, before a page is served, whether a visitor may see
// it or must be redirected. The check only looks at whether a refresh
// cookie is present; the API re-checks authorization on every call.
package guard

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reason explains a Decision
type Reason string

const (
	// ReasonPublic means the path needs no session
	ReasonPublic Reason = "public"
	// ReasonSession means the path is protected and a session marker is present
	ReasonSession Reason = "session"
	// ReasonNoSession means a protected path was requested without a session marker
	ReasonNoSession Reason = "no_session"
	// ReasonSignedIn means an auth page was requested by a signed-in visitor
	ReasonSignedIn Reason = "signed_in"
)

// Decision is the outcome of a guard check. Location is set when Allow is
// false.
type Decision struct {
	Allow    bool
	Location string
	Reason   Reason
}

// Config describes which paths are public and where visitors are sent
type Config struct {
	CookieName       string   // Session marker cookie (default: refresh_token)
	LoginPath        string   // Where visitors without a session go (default: /auth/login)
	HomePath         string   // Where signed-in visitors on auth pages go (default: /dashboard)
	AuthPrefix       string   // Auth section (default: /auth)
	PublicPaths      []string // Exact public paths (default: /)
	PublicPrefixes   []string // Public path prefixes, matched per segment
	PublicExtensions []string // Static asset extensions that are always public
	RedirectStatus   int      // Default: 307
}

// DefaultConfig returns the routing rules of the MedHelp frontend
func DefaultConfig() Config {
	return Config{
		CookieName:       "refresh_token",
		LoginPath:        "/auth/login",
		HomePath:         "/dashboard",
		AuthPrefix:       "/auth",
		PublicPaths:      []string{"/"},
		PublicPrefixes:   []string{"/auth", "/_next", "/static", "/api"},
		PublicExtensions: []string{".ico", ".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"},
		RedirectStatus:   http.StatusTemporaryRedirect,
	}
}

// Option configures a Guard
type Option func(*Guard)

// WithRegisterer counts decisions in medhelp_guard_decisions_total on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Guard) {
		g.decisions = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "medhelp",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Total number of route guard decisions by outcome and reason",
		}, []string{"decision", "reason"})
	}
}

// Guard applies Config to incoming paths
type Guard struct {
	cfg       Config
	decisions *prometheus.CounterVec
}

// New creates a guard. Zero fields of cfg take their DefaultConfig values.
func New(cfg Config, opts ...Option) (*Guard, error) {
	defaults := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = defaults.CookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = defaults.LoginPath
	}
	if cfg.HomePath == "" {
		cfg.HomePath = defaults.HomePath
	}
	if cfg.AuthPrefix == "" {
		cfg.AuthPrefix = defaults.AuthPrefix
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = defaults.PublicPaths
	}
	if cfg.PublicPrefixes == nil {
		cfg.PublicPrefixes = defaults.PublicPrefixes
	}
	if cfg.PublicExtensions == nil {
		cfg.PublicExtensions = defaults.PublicExtensions
	}
	if cfg.RedirectStatus == 0 {
		cfg.RedirectStatus = defaults.RedirectStatus
	}

	for name, p := range map[string]string{"login path": cfg.LoginPath, "home path": cfg.HomePath, "auth prefix": cfg.AuthPrefix} {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%s %q must start with /", name, p)
		}
	}
	if cfg.RedirectStatus < 300 || cfg.RedirectStatus > 399 {
		return nil, fmt.Errorf("redirect status %d is not a redirect", cfg.RedirectStatus)
	}

	g := &Guard{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

var defaultGuard = &Guard{cfg: DefaultConfig()}

// Decide applies DefaultConfig to path
func Decide(path string, hasSession bool) Decision {
	return defaultGuard.Decide(path, hasSession)
}

// Decide returns whether path may be served. hasSession is the presence of
// the session marker, not its validity.
//
// Public paths are always served, except auth pages, which send signed-in
// visitors home. Logout pages are served either way. Protected paths
// without a session redirect to the login page carrying the requested path.
func (g *Guard) Decide(requestPath string, hasSession bool) Decision {
	p := cleanPath(requestPath)
	isAuthPage := underPrefix(p, g.cfg.AuthPrefix)

	if hasSession && isAuthPage && !isLogout(p) {
		return Decision{Location: g.cfg.HomePath, Reason: ReasonSignedIn}
	}

	if g.isPublic(p) {
		return Decision{Allow: true, Reason: ReasonPublic}
	}

	if !hasSession {
		location := g.cfg.LoginPath + "?" + url.Values{"redirect": {p}}.Encode()
		return Decision{Location: location, Reason: ReasonNoSession}
	}

	return Decision{Allow: true, Reason: ReasonSession}
}

// HasSession reports whether r carries the session marker cookie
func (g *Guard) HasSession(r *http.Request) bool {
	c, err := r.Cookie(g.cfg.CookieName)
	return err == nil && c.Value != ""
}

// Middleware redirects requests the guard does not allow
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Decide(r.URL.Path, g.HasSession(r))
		g.observe(decision)

		if !decision.Allow {
			slog.Debug("Route guard redirect",
				"path", r.URL.Path,
				"location", decision.Location,
				"reason", decision.Reason)
			http.Redirect(w, r, decision.Location, g.cfg.RedirectStatus)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Guard) observe(d Decision) {
	if g.decisions == nil {
		return
	}
	outcome := "allow"
	if !d.Allow {
		outcome = "redirect"
	}
	g.decisions.WithLabelValues(outcome, string(d.Reason)).Inc()
}

func (g *Guard) isPublic(p string) bool {
	if slices.Contains(g.cfg.PublicPaths, p) {
		return true
	}
	for _, prefix := range g.cfg.PublicPrefixes {
		if underPrefix(p, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	return ext != "" && slices.Contains(g.cfg.PublicExtensions, ext)
}

// cleanPath resolves dot segments so that "/auth/../dashboard" is judged
// as "/dashboard".
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// underPrefix matches whole segments: "/auth" covers "/auth/login" but not
// "/authors".
func underPrefix(p, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func isLogout(p string) bool {
	return slices.Contains(strings.Split(p, "/"), "logout")
}
