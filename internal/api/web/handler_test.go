package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/playback/playbacktest"
	"github.com/cesium/periferico/internal/app/session"
	"github.com/cesium/periferico/internal/domain/episode"
	"github.com/cesium/periferico/internal/infra/config"
	"github.com/cesium/periferico/internal/infra/notes"
)

const cookieName = "periferico_session"

type staticSource []episode.Episode

func (s staticSource) Fetch(ctx context.Context) ([]episode.Episode, error) {
	return s, nil
}

type fixture struct {
	handler  *Handler
	loader   *playbacktest.Loader
	sessions *session.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.New(staticSource{
		{
			ID:          "3",
			Title:       "Episódio 3",
			Description: "Conversa sobre compiladores",
			Content:     "## Tópicos\n\n- parsers",
			Published:   time.Date(2023, 3, 1, 18, 0, 0, 0, time.UTC),
			Audio:       episode.Audio{Src: "https://cdn.example.com/ep3.mp3", Type: "audio/mpeg"},
		},
		{
			ID:          "2",
			Title:       "Episódio 2",
			Description: "Conversa sobre redes",
			Published:   time.Date(2023, 2, 15, 18, 0, 0, 0, time.UTC),
			Audio:       episode.Audio{Src: "https://cdn.example.com/ep2.mp3", Type: "audio/mpeg"},
		},
	}, 0)
	require.NoError(t, cat.Refresh(context.Background()))

	loader := playbacktest.NewLoader()
	sessions := session.NewRegistry(loader, time.Hour, time.Minute)
	t.Cleanup(sessions.Close)

	h, err := New(Config{
		Site: config.SiteConfig{
			Title:       "Periférico",
			Description: "CeSIUM",
			About:       "Um podcast sobre informática.",
			Links:       []config.LinkConfig{{Label: "Spotify", URL: "https://open.spotify.com/show/x"}},
		},
		FeedURL:    "https://example.com/rss",
		CookieName: cookieName,
	}, cat, sessions, notes.NewRenderer())
	require.NoError(t, err)

	return &fixture{handler: h, loader: loader, sessions: sessions}
}

// do serves one request, reusing cookie when set, and returns the response.
func (f *fixture) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// open starts a session and returns its cookie.
func (f *fixture) open(t *testing.T) (*http.Cookie, *session.Session) {
	t.Helper()
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	sess, err := f.sessions.Get(cookies[0].Value)
	require.NoError(t, err)
	return cookies[0], sess
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.open(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "a known session keeps its cookie")

	body := rec.Body.String()
	assert.Contains(t, body, "<title>Periférico</title>")
	assert.Contains(t, body, "Um podcast sobre informática.")
	assert.Contains(t, body, `href="https://open.spotify.com/show/x"`)
	assert.Contains(t, body, `href="/3"`)
	assert.Contains(t, body, "1 Mar 2023")
	assert.Contains(t, body, "Conversa sobre redes")
	assert.Contains(t, body, `aria-label="Play episode Episódio 3"`)
	assert.Less(t, strings.Index(body, "Episódio 3"), strings.Index(body, "Episódio 2"), "most recent first")
}

func TestEpisodePage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/3", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<title>Episódio 3 - Periférico</title>")
	assert.Contains(t, body, "<h2>Tópicos</h2>")
	assert.Contains(t, body, "<li>parsers</li>")
}

func TestEpisodePage_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/42", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Episódio não encontrado")
}

func TestToggle(t *testing.T) {
	f := newFixture(t)
	cookie, sess := f.open(t)

	rec := f.do(t, postForm("/player/toggle", url.Values{"episode": {"3"}, "return": {"/3"}}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/3", rec.Header().Get("Location"))

	state := sess.Store.Snapshot()
	require.NotNil(t, state.Current)
	assert.Equal(t, "3", state.Current.ID)
	assert.Equal(t, "https://cdn.example.com/ep3.mp3", state.Current.AudioSource)
	assert.Equal(t, playback.StatusLoading, state.Status)

	f.loader.Last().Ready(2 * time.Minute)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	body := rec.Body.String()
	assert.Contains(t, body, `aria-label="Pause episode Episódio 3"`)
	assert.Contains(t, body, `aria-label="Play episode Episódio 2"`)
	assert.Contains(t, body, `data-status="playing"`)
	assert.Contains(t, body, "2:00")

	// The same form pauses it again.
	rec = f.do(t, postForm("/player/toggle", url.Values{"episode": {"3"}}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, playback.StatusPaused, sess.Store.Snapshot().Status)
}

func TestToggle_UnknownEpisode(t *testing.T) {
	f := newFixture(t)
	cookie, sess := f.open(t)

	rec := f.do(t, postForm("/player/toggle", url.Values{"episode": {"42"}}), cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, playback.StatusIdle, sess.Store.Snapshot().Status)
	assert.Empty(t, f.loader.Resources())
}

func TestToggle_ReturnPath(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "/2", expected: "/2"},
		{in: "", expected: "/"},
		{in: "//evil.example.com", expected: "/"},
		{in: "https://evil.example.com", expected: "/"},
		{in: "/\\evil.example.com", expected: "/"},
	}

	f := newFixture(t)
	cookie, _ := f.open(t)

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rec := f.do(t, postForm("/player/toggle", url.Values{"episode": {"2"}, "return": {tt.in}}), cookie)
			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.expected, rec.Header().Get("Location"))
		})
	}
}

func TestSeek(t *testing.T) {
	f := newFixture(t)
	cookie, sess := f.open(t)

	rec := f.do(t, postForm("/player/seek", url.Values{"position": {"30"}}), cookie)
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing loaded")

	f.do(t, postForm("/player/toggle", url.Values{"episode": {"3"}}), cookie)
	f.loader.Last().Ready(2 * time.Minute)

	rec = f.do(t, postForm("/player/seek", url.Values{"fraction": {"0.5"}, "return": {"/3"}}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/3", rec.Header().Get("Location"))
	assert.Equal(t, time.Minute, sess.Store.Snapshot().CurrentTime)

	rec = f.do(t, postForm("/player/seek", url.Values{"position": {"500"}}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 2*time.Minute, sess.Store.Snapshot().CurrentTime, "clamped to the duration")
	assert.Equal(t, playback.StatusPlaying, sess.Store.Snapshot().Status)

	rec = f.do(t, postForm("/player/seek", url.Values{"position": {"soon"}}), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, postForm("/player/seek", url.Values{}), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeek_OutOfRange(t *testing.T) {
	tests := []struct {
		position string
		expected time.Duration
	}{
		{position: "1e11", expected: 2 * time.Minute},
		{position: "+Inf", expected: 2 * time.Minute},
		{position: "-Inf", expected: 0},
		{position: "-1e11", expected: 0},
		{position: "NaN", expected: 0},
	}

	f := newFixture(t)
	cookie, sess := f.open(t)
	f.do(t, postForm("/player/toggle", url.Values{"episode": {"3"}}), cookie)
	f.loader.Last().Ready(2 * time.Minute)

	for _, tt := range tests {
		t.Run(tt.position, func(t *testing.T) {
			rec := f.do(t, postForm("/player/seek", url.Values{"position": {"60"}}), cookie)
			require.Equal(t, http.StatusSeeOther, rec.Code)

			rec = f.do(t, postForm("/player/seek", url.Values{"position": {tt.position}}), cookie)
			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.expected, sess.Store.Snapshot().CurrentTime)
		})
	}

	rec := f.do(t, postForm("/player/seek", url.Values{"fraction": {"NaN"}}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, time.Duration(0), sess.Store.Snapshot().CurrentTime)
}

func TestStateJSON(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.open(t)

	req := postForm("/player/toggle", url.Values{"episode": {"2"}})
	req.Header.Set("Accept", "application/json")
	rec := f.do(t, req, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var got stateJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Visible)
	assert.Equal(t, "2", got.Episode)
	assert.Equal(t, "loading", got.Status)

	f.loader.Last().Ready(90 * time.Second)
	f.loader.Last().Progress(45 * time.Second)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/player/state", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "playing", got.Status)
	assert.Equal(t, 45.0, got.CurrentTime)
	assert.Equal(t, 90.0, got.Duration)
	assert.Equal(t, 0.5, got.Progress)
	assert.Equal(t, "0:45", got.Elapsed)
	assert.Equal(t, "1:30", got.Total)
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	cookie, sess := f.open(t)

	f.do(t, postForm("/player/toggle", url.Values{"episode": {"3"}}), cookie)
	rec := f.do(t, postForm("/player/unload", url.Values{}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	assert.Equal(t, playback.StatusIdle, sess.Store.Snapshot().Status)
	assert.True(t, f.loader.Last().Closed())
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	resp, err := client.Get(server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = client.Get(server.URL + "/player/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan stateJSON, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var s stateJSON
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s) == nil {
				events <- s
			}
		}
		close(events)
	}()

	next := func() stateJSON {
		select {
		case s, ok := <-events:
			require.True(t, ok, "stream closed")
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return stateJSON{}
		}
	}

	assert.False(t, next().Visible, "the initial view is the idle mini-player")

	resp2, err := client.PostForm(server.URL+"/player/toggle", url.Values{"episode": {"3"}})
	require.NoError(t, err)
	resp2.Body.Close()

	s := next()
	assert.True(t, s.Visible)
	assert.Equal(t, "3", s.Episode)
}
