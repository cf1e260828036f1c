package media

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/infra/config"
)

// HTTPSettings configures the "http" media type.
type HTTPSettings struct {
	BitrateKbps int `mapstructure:"bitrate_kbps" default:"128" validate:"gte=8,lte=1536"`
	TimeoutSec  int `mapstructure:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	TickMs      int `mapstructure:"tick_ms" default:"250" validate:"gte=10"`
}

// ClockSettings configures the "clock" media type.
type ClockSettings struct {
	DurationSec int `mapstructure:"duration_sec" default:"1800" validate:"gte=1"`
	TickMs      int `mapstructure:"tick_ms" default:"250" validate:"gte=10"`
}

// NewLoader creates the loader selected by cfg.
func NewLoader(cfg config.MediaConfig) (playback.Loader, error) {
	zlog.Debug().Msgf("creating media loader: type=%s settings=%+v", cfg.Type, cfg.Settings)

	switch cfg.Type {
	case "http", "":
		var s HTTPSettings
		if err := decodeSettings(cfg.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid http media settings")
		}
		client := &http.Client{Timeout: time.Duration(s.TimeoutSec) * time.Second}
		zlog.Info().Msgf("media loader: type=http bitrate_kbps=%d timeout_sec=%d", s.BitrateKbps, s.TimeoutSec)
		return NewHTTPLoader(client, s.BitrateKbps, time.Duration(s.TickMs)*time.Millisecond), nil

	case "clock":
		var s ClockSettings
		if err := decodeSettings(cfg.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid clock media settings")
		}
		zlog.Info().Msgf("media loader: type=clock duration_sec=%d", s.DurationSec)
		return &ClockLoader{
			Duration: time.Duration(s.DurationSec) * time.Second,
			Tick:     time.Duration(s.TickMs) * time.Millisecond,
		}, nil

	default:
		return nil, errors.Newf("unsupported media type: %s", cfg.Type)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
