package web

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/transport"
	"github.com/cesium/periferico/internal/domain/episode"
	"github.com/cesium/periferico/internal/infra/config"
)

var icons = map[string]string{
	transport.IconPlay:    "▶",
	transport.IconPause:   "❚❚",
	transport.IconLoading: "…",
	transport.IconError:   "!",
}

var funcs = template.FuncMap{
	"icon": func(name string) string { return icons[name] },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2 Jan 2006")
	},
	"isoDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	},
}

type pages struct {
	index    *template.Template
	episode  *template.Template
	notFound *template.Template
}

func parsePages() (*pages, error) {
	parse := func(name string) (*template.Template, error) {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse template %s", name)
		}
		return t, nil
	}

	var p pages
	var err error
	if p.index, err = parse("index.html"); err != nil {
		return nil, err
	}
	if p.episode, err = parse("episode.html"); err != nil {
		return nil, err
	}
	if p.notFound, err = parse("notfound.html"); err != nil {
		return nil, err
	}
	return &p, nil
}

// pageData is passed to every page.
type pageData struct {
	Site     config.SiteConfig
	FeedURL  string
	Path     string
	Player   transport.MiniPlayerView
	Episodes []episodeView
	Episode  *episodeView
}

// episodeView is one episode as listed on a page.
type episodeView struct {
	ID          string
	Title       string
	Description string
	Link        string
	Published   time.Time
	Notes       template.HTML
	Button      transport.ButtonView
	Return      string
}

func newEpisodeView(ep episode.Episode, state playback.State, returnTo string) episodeView {
	ref := ep.Ref()
	return episodeView{
		ID:          ep.ID,
		Title:       ep.Title,
		Description: ep.Description,
		Link:        ref.Link,
		Published:   ep.Published,
		Button:      transport.RenderButton(state, ref),
		Return:      returnTo,
	}
}

func (h *Handler) newPageData(r *http.Request, state playback.State) pageData {
	return pageData{
		Site:    h.config.Site,
		FeedURL: h.config.FeedURL,
		Path:    r.URL.Path,
		Player:  transport.RenderMiniPlayer(state),
	}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	state := sessionFrom(r).Store.Snapshot()
	data := h.newPageData(r, state)
	for _, ep := range h.catalog.Episodes() {
		data.Episodes = append(data.Episodes, newEpisodeView(ep, state, r.URL.Path))
	}
	h.render(w, h.pages.index, http.StatusOK, data)
}

func (h *Handler) episode(w http.ResponseWriter, r *http.Request) {
	state := sessionFrom(r).Store.Snapshot()
	data := h.newPageData(r, state)

	ep, err := h.catalog.Find(r.PathValue("episode"))
	if err != nil {
		h.notFound(w, data)
		return
	}

	view := newEpisodeView(ep, state, r.URL.Path)
	view.Notes, err = h.notes.Render(ep.Content)
	if err != nil {
		zlog.Warn().Msgf("web: failed to render notes: episode=%s err=%v", ep.ID, err)
		view.Notes = template.HTML(template.HTMLEscapeString(ep.Description))
	}
	data.Episode = &view

	h.render(w, h.pages.episode, http.StatusOK, data)
}

func (h *Handler) notFound(w http.ResponseWriter, data pageData) {
	h.render(w, h.pages.notFound, http.StatusNotFound, data)
}

// render executes the page into a buffer so a template error still yields a
// clean 500.
func (h *Handler) render(w http.ResponseWriter, t *template.Template, status int, data pageData) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		zlog.Error().Msgf("web: failed to render page: path=%s err=%v", data.Path, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func isNotFound(err error) bool {
	return errors.Is(err, catalog.ErrEpisodeNotFound)
}
