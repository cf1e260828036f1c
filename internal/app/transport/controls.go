// Package transport provides the play button and mini-player controls.
// Controls keep no playback state; every view is derived from a store state.
package transport

import (
	"fmt"
	"math"
	"time"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// Icon names rendered by the page templates.
const (
	IconPlay    = "play"
	IconPause   = "pause"
	IconLoading = "loading"
	IconError   = "error"
)

// ButtonView is the rendered state of a play/pause button.
type ButtonView struct {
	EpisodeID string
	Playing   bool
	Loading   bool
	Errored   bool
	Icon      string
	Label     string // Accessible label
}

// RenderButton derives the button for ref from state.
func RenderButton(state playback.State, ref episode.Ref) ButtonView {
	v := ButtonView{
		EpisodeID: ref.ID,
		Playing:   playback.IsPlaying(state, ref.ID),
	}

	current := playback.IsCurrent(state, ref.ID)
	v.Loading = current && state.Status == playback.StatusLoading
	v.Errored = current && state.Status == playback.StatusError

	switch {
	case v.Playing:
		v.Icon = IconPause
	case v.Errored:
		v.Icon = IconError
	case v.Loading:
		v.Icon = IconLoading
	default:
		v.Icon = IconPlay
	}

	if v.Playing {
		v.Label = fmt.Sprintf("Pause episode %s", ref.Title)
	} else {
		v.Label = fmt.Sprintf("Play episode %s", ref.Title)
	}
	return v
}

// MiniPlayerView is the rendered state of the persistent playback bar.
type MiniPlayerView struct {
	Visible     bool
	EpisodeID   string
	Title       string
	Link        string
	Status      string
	Playing     bool
	Errored     bool
	Error       string
	CurrentTime time.Duration
	Duration    time.Duration
	Progress    float64 // Fraction of the episode played, in [0, 1]
	Elapsed     string
	Total       string
	Button      ButtonView
}

// RenderMiniPlayer derives the mini-player from state. The bar is hidden while
// nothing is loaded.
func RenderMiniPlayer(state playback.State) MiniPlayerView {
	if state.Current == nil {
		return MiniPlayerView{Status: state.Status.String()}
	}

	v := MiniPlayerView{
		Visible:     true,
		EpisodeID:   state.Current.ID,
		Title:       state.Current.Title,
		Link:        state.Current.Link,
		Status:      state.Status.String(),
		Playing:     state.Status == playback.StatusPlaying,
		Errored:     state.Status == playback.StatusError,
		Error:       state.Err,
		CurrentTime: state.CurrentTime,
		Duration:    state.Duration,
		Elapsed:     FormatTime(state.CurrentTime),
		Total:       FormatTime(state.Duration),
		Button:      RenderButton(state, *state.Current),
	}
	if state.Duration > 0 {
		v.Progress = float64(state.CurrentTime) / float64(state.Duration)
		if v.Progress > 1 {
			v.Progress = 1
		}
	}
	return v
}

// FormatTime renders d as m:ss, or h:mm:ss from one hour on.
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// PositionAt maps a scrubber fraction to a position within duration.
func PositionAt(fraction float64, duration time.Duration) time.Duration {
	if fraction < 0 || math.IsNaN(fraction) {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return time.Duration(fraction * float64(duration))
}

// SecondsToPosition converts a position given in seconds, saturating at the
// time.Duration range. NaN maps to 0.
func SecondsToPosition(seconds float64) time.Duration {
	if math.IsNaN(seconds) {
		return 0
	}
	ns := seconds * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}
