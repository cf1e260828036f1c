// Package web serves the podcast site: the episode pages, the mini-player and
// the form endpoints that drive the listener's playback store.
package web

import (
	"context"
	"embed"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/session"
	"github.com/cesium/periferico/internal/domain/listener"
	"github.com/cesium/periferico/internal/infra/config"
	"github.com/cesium/periferico/internal/infra/notes"
)

//go:embed templates
var templatesFS embed.FS

// Config holds the site settings used by the pages.
type Config struct {
	Site       config.SiteConfig
	FeedURL    string
	CookieName string
}

// Handler serves the site.
type Handler struct {
	config   Config
	catalog  *catalog.Catalog
	sessions *session.Registry
	notes    *notes.Renderer
	pages    *pages
	mux      *http.ServeMux
}

// New creates the site handler.
func New(cfg Config, cat *catalog.Catalog, sessions *session.Registry, renderer *notes.Renderer) (*Handler, error) {
	if cfg.CookieName == "" {
		return nil, errors.New("session cookie name is required")
	}

	p, err := parsePages()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		config:   cfg,
		catalog:  cat,
		sessions: sessions,
		notes:    renderer,
		pages:    p,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /{$}", h.withSession(h.index))
	h.mux.HandleFunc("GET /{episode}", h.withSession(h.episode))
	h.mux.HandleFunc("GET /player/state", h.withSession(h.state))
	h.mux.HandleFunc("GET /player/events", h.withSession(h.events))
	h.mux.HandleFunc("GET /player/script.js", h.script)
	h.mux.HandleFunc("POST /player/toggle", h.withSession(h.toggle))
	h.mux.HandleFunc("POST /player/seek", h.withSession(h.seek))
	h.mux.HandleFunc("POST /player/unload", h.withSession(h.unload))

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	zlog.Debug().Msgf("web: request: method=%s path=%s", r.Method, r.URL.Path)
	h.mux.ServeHTTP(w, r)
}

type sessionKey struct{}

// withSession resolves the listener's session from the cookie, opening a new
// one when the cookie is missing or expired.
func (h *Handler) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(h.config.CookieName); err == nil {
			id = c.Value
		}

		sess, created, err := h.sessions.Resolve(id, listener.ClientWeb)
		if err != nil {
			zlog.Error().Msgf("web: failed to resolve session: err=%v", err)
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     h.config.CookieName,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return sess
}

// returnPath accepts only local paths as redirect targets.
func returnPath(v string) string {
	if strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//") && !strings.HasPrefix(v, "/\\") {
		return v
	}
	return "/"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
