package connect

import (
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cesium/periferico/internal/app/notification"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// Wire field names shared by server and clients.
const (
	fieldID          = "id"
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldPublished   = "published"
	fieldAudioSource = "audio_source"
	fieldAudioType   = "audio_type"
	fieldLink        = "link"
	fieldDuration    = "duration"
	fieldEpisode     = "episode"
	fieldStatus      = "status"
	fieldCurrentTime = "current_time"
	fieldError       = "error"
	fieldType        = "type"
	fieldSequenceNo  = "sequence_no"
	fieldState       = "state"
)

// EncodeState converts a playback state to its wire form. Times are seconds.
func EncodeState(s playback.State) (*structpb.Struct, error) {
	fields := map[string]any{
		fieldStatus:      s.Status.String(),
		fieldCurrentTime: s.CurrentTime.Seconds(),
		fieldDuration:    s.Duration.Seconds(),
		fieldEpisode:     nil,
	}
	if s.Current != nil {
		fields[fieldEpisode] = map[string]any{
			fieldID:          s.Current.ID,
			fieldTitle:       s.Current.Title,
			fieldAudioSource: s.Current.AudioSource,
			fieldAudioType:   s.Current.AudioType,
			fieldLink:        s.Current.Link,
		}
	}
	if s.Err != "" {
		fields[fieldError] = s.Err
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode state")
	}
	return out, nil
}

// DecodeState converts the wire form back to a playback state.
func DecodeState(in *structpb.Struct) (playback.State, error) {
	if in == nil {
		return playback.State{}, errors.New("empty state")
	}
	f := in.GetFields()

	state := playback.State{
		Status:      playback.ParseStatus(f[fieldStatus].GetStringValue()),
		CurrentTime: seconds(f[fieldCurrentTime].GetNumberValue()),
		Duration:    seconds(f[fieldDuration].GetNumberValue()),
		Err:         f[fieldError].GetStringValue(),
	}

	if ep := f[fieldEpisode].GetStructValue(); ep != nil {
		e := ep.GetFields()
		state.Current = &episode.Ref{
			ID:          e[fieldID].GetStringValue(),
			Title:       e[fieldTitle].GetStringValue(),
			AudioSource: e[fieldAudioSource].GetStringValue(),
			AudioType:   e[fieldAudioType].GetStringValue(),
			Link:        e[fieldLink].GetStringValue(),
		}
		if state.Current.ID == "" {
			return playback.State{}, errors.New("episode without id")
		}
	}
	return state, nil
}

// EncodeEpisode converts a feed episode to its wire form.
func EncodeEpisode(ep episode.Episode) (*structpb.Struct, error) {
	published := ""
	if !ep.Published.IsZero() {
		published = ep.Published.UTC().Format(time.RFC3339)
	}
	out, err := structpb.NewStruct(map[string]any{
		fieldID:          ep.ID,
		fieldTitle:       ep.Title,
		fieldDescription: ep.Description,
		fieldPublished:   published,
		fieldAudioSource: ep.Audio.Src,
		fieldAudioType:   ep.Audio.Type,
		fieldDuration:    ep.Duration.Seconds(),
		fieldLink:        episode.Link(ep.ID),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode episode %s", ep.ID)
	}
	return out, nil
}

// DecodeEpisode converts the wire form back to an episode. Show notes are not
// sent over the wire.
func DecodeEpisode(in *structpb.Struct) (episode.Episode, error) {
	f := in.GetFields()
	ep := episode.Episode{
		ID:          f[fieldID].GetStringValue(),
		Title:       f[fieldTitle].GetStringValue(),
		Description: f[fieldDescription].GetStringValue(),
		Audio: episode.Audio{
			Src:  f[fieldAudioSource].GetStringValue(),
			Type: f[fieldAudioType].GetStringValue(),
		},
		Duration: seconds(f[fieldDuration].GetNumberValue()),
	}
	if ep.ID == "" {
		return episode.Episode{}, errors.New("episode without id")
	}
	if p := f[fieldPublished].GetStringValue(); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			return episode.Episode{}, errors.Wrapf(err, "invalid published time for episode %s", ep.ID)
		}
		ep.Published = t
	}
	return ep, nil
}

// EncodeNotification wraps a state notification with its sequence number.
func EncodeNotification(n notification.Notification) (*structpb.Struct, error) {
	state, err := EncodeState(n.State)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:       structpb.NewStringValue(n.Type.String()),
		fieldSequenceNo: structpb.NewNumberValue(float64(n.SequenceNo)),
		fieldState:      structpb.NewStructValue(state),
	}}, nil
}

// DecodeNotification reads a notification sent by Subscribe.
func DecodeNotification(in *structpb.Struct) (notification.Notification, error) {
	f := in.GetFields()
	state, err := DecodeState(f[fieldState].GetStructValue())
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "failed to decode notification")
	}

	n := notification.Notification{
		SequenceNo: uint64(f[fieldSequenceNo].GetNumberValue()),
		State:      state,
	}
	switch f[fieldType].GetStringValue() {
	case notification.TypeInitialState.String():
		n.Type = notification.TypeInitialState
	case notification.TypeStateChanged.String():
		n.Type = notification.TypeStateChanged
	default:
		return notification.Notification{}, errors.Newf("unknown notification type %q", f[fieldType].GetStringValue())
	}
	return n, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
