package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/transport"
)

// keepAlive is how often an idle event stream is pinged. Each ping also keeps
// the session from expiring while the page is open.
const keepAlive = 15 * time.Second

// stateJSON is the mini-player as seen by the page script.
type stateJSON struct {
	Visible     bool    `json:"visible"`
	Episode     string  `json:"episode,omitempty"`
	Title       string  `json:"title,omitempty"`
	Link        string  `json:"link,omitempty"`
	Status      string  `json:"status"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Progress    float64 `json:"progress"`
	Elapsed     string  `json:"elapsed"`
	Total       string  `json:"total"`
	Error       string  `json:"error,omitempty"`
}

func newStateJSON(v transport.MiniPlayerView) stateJSON {
	return stateJSON{
		Visible:     v.Visible,
		Episode:     v.EpisodeID,
		Title:       v.Title,
		Link:        v.Link,
		Status:      v.Status,
		CurrentTime: v.CurrentTime.Seconds(),
		Duration:    v.Duration.Seconds(),
		Progress:    v.Progress,
		Elapsed:     v.Elapsed,
		Total:       v.Total,
		Error:       v.Error,
	}
}

func writeState(w http.ResponseWriter, state playback.State) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newStateJSON(transport.RenderMiniPlayer(state))); err != nil {
		zlog.Debug().Msgf("web: failed to write state: err=%v", err)
	}
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	writeState(w, sessionFrom(r).Store.Snapshot())
}

// events streams the mini-player as server-sent events until the page goes
// away or the session is closed.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sess := sessionFrom(r)

	// Only the latest view matters; a slow client skips intermediate ones.
	updates := make(chan transport.MiniPlayerView, 1)
	player := transport.NewMiniPlayer(sess.Store, func(v transport.MiniPlayerView) {
		for {
			select {
			case updates <- v:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	player.Mount()
	defer player.Unmount()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
			if _, err := h.sessions.Get(sess.ID); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case v := <-updates:
			data, err := json.Marshal(newStateJSON(v))
			if err != nil {
				zlog.Error().Msgf("web: failed to encode state: err=%v", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) script(w http.ResponseWriter, r *http.Request) {
	data, err := templatesFS.ReadFile("templates/script.js")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(data)
}

// toggle plays or pauses the episode named by the "episode" form field.
func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	ep, err := h.catalog.Find(r.FormValue("episode"))
	if err != nil {
		if isNotFound(err) {
			h.notFound(w, h.newPageData(r, sess.Store.Snapshot()))
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	button := transport.NewPlayButton(sess.Store, ep.Ref(), nil)
	button.Activate()
	button.Unmount()

	zlog.Debug().Msgf("web: toggled: session=%s episode=%s playing=%t", sess.ID, ep.ID, button.Playing())
	h.done(w, r)
}

// seek moves the loaded episode to "fraction" of its duration, or to
// "position" seconds.
func (h *Handler) seek(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	player := transport.NewMiniPlayer(sess.Store, nil)

	var err error
	switch {
	case r.FormValue("fraction") != "":
		var fraction float64
		fraction, err = strconv.ParseFloat(r.FormValue("fraction"), 64)
		if err != nil {
			http.Error(w, "invalid fraction", http.StatusBadRequest)
			return
		}
		err = player.ScrubTo(fraction)
	case r.FormValue("position") != "":
		var seconds float64
		seconds, err = strconv.ParseFloat(r.FormValue("position"), 64)
		if err != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		err = player.SeekTo(transport.SecondsToPosition(seconds))
	default:
		http.Error(w, "position or fraction is required", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.done(w, r)
}

func (h *Handler) unload(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Store.Unload()
	h.done(w, r)
}

// done answers a player command: the new state for scripts, a redirect back to
// the page for plain forms.
func (h *Handler) done(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeState(w, sessionFrom(r).Store.Snapshot())
		return
	}
	http.Redirect(w, r, returnPath(r.FormValue("return")), http.StatusSeeOther)
}
