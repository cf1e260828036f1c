package main

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/transport"
	"github.com/cesium/periferico/internal/domain/episode"
)

// resolveEpisode finds the episode named by arg: an exact id first, then the
// closest title match.
func resolveEpisode(arg string, episodes []episode.Episode) (episode.Episode, error) {
	titles := make([]string, len(episodes))
	for i, ep := range episodes {
		if ep.ID == arg {
			return ep, nil
		}
		titles[i] = ep.Title
	}

	ranks := fuzzy.RankFindNormalizedFold(arg, titles)
	if len(ranks) == 0 {
		return episode.Episode{}, errors.Newf("no episode matches %q", arg)
	}
	sort.Sort(ranks)
	return episodes[ranks[0].OriginalIndex], nil
}

func renderEpisodes(episodes []episode.Episode) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Published", "Title", "Duration"})
	for _, ep := range episodes {
		published := ""
		if !ep.Published.IsZero() {
			published = ep.Published.Format("2006-01-02")
		}
		duration := ""
		if ep.Duration > 0 {
			duration = transport.FormatTime(ep.Duration)
		}
		tw.AppendRow(table.Row{ep.ID, published, ep.Title, duration})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func formatStatus(status playback.Status) string {
	switch status {
	case playback.StatusIdle:
		return "⏹  Idle"
	case playback.StatusLoading:
		return "⏳ Loading"
	case playback.StatusPlaying:
		return "▶️  Playing"
	case playback.StatusPaused:
		return "⏸  Paused"
	case playback.StatusEnded:
		return "🔚 Ended"
	case playback.StatusError:
		return "❌ Error"
	default:
		return "❓ Unknown"
	}
}

func formatState(state playback.State) string {
	if state.Current == nil {
		return formatStatus(state.Status)
	}
	line := fmt.Sprintf("%s  #%s %s  %s / %s",
		formatStatus(state.Status),
		state.Current.ID,
		state.Current.Title,
		transport.FormatTime(state.CurrentTime),
		transport.FormatTime(state.Duration),
	)
	if state.Err != "" {
		line += "  (" + state.Err + ")"
	}
	return line
}
