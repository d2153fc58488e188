package bootstrap

import (
	"agrivoice/internal/audio"
	"agrivoice/internal/backend"
	"agrivoice/internal/config"
	"agrivoice/internal/media"
	"agrivoice/internal/ports"
	"agrivoice/internal/recorder"
	"agrivoice/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Previews   *media.PreviewStore
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. The
// image picker is supplied by the caller because it needs the UI
// runtime context.
func Build(eventSink ports.EventSink, picker ports.ImagePicker) Services {
	cfg := config.Load()

	previews := media.NewPreviewStore()

	rec := recorder.New(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		previews,
		eventSink,
		recorder.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			TickInterval: cfg.Session.TickInterval,
			ChunkSize:    cfg.Session.ChunkSize,
		},
	)

	controller := usecase.NewSessionController(
		backend.NewClient(cfg.Backend.APIBaseURL, cfg.Backend.RequestTimeout),
		picker,
		rec,
		previews,
		eventSink,
		usecase.Config{DefaultLanguage: cfg.Session.Language},
	)

	return Services{Controller: controller, Previews: previews, Config: cfg}
}
