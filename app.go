package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"agrivoice/internal/bootstrap"
	"agrivoice/internal/config"
	"agrivoice/internal/domain"
	"agrivoice/internal/events"
	"agrivoice/internal/media"
	"agrivoice/internal/usecase"
)

const (
	eventRecording = "agrivoice:recording"
	eventTick      = "agrivoice:tick"
	eventTimeline  = "agrivoice:timeline"
	eventBusy      = "agrivoice:busy"
	eventError     = "agrivoice:error"
)

// App is the Wails application root. It owns the event queue that
// serializes controller notifications into frontend events.
type App struct {
	ctx context.Context

	queue      *events.Queue
	controller *usecase.SessionController
	previews   *media.PreviewStore
	cfg        config.Config
}

func NewApp() *App {
	queue := events.NewQueue(0)
	services := bootstrap.Build(events.NewSink(queue), media.NewDialogPicker())
	return &App{
		queue:      queue,
		controller: services.Controller,
		previews:   services.Previews,
		cfg:        services.Config,
	}
}

// Previews exposes the preview store for the asset server mount.
func (a *App) Previews() *media.PreviewStore {
	return a.previews
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	go a.queue.Dispatch(ctx, a.emit)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Dispose()
	}
}

// BeginChat seeds the conversation with the assistant greeting and
// returns the timeline for first render.
func (a *App) BeginChat() []domain.Message {
	if err := a.requireReady(); err != nil {
		return nil
	}
	a.controller.Greet()
	return a.controller.Messages()
}

// SendMessage submits the typed text plus any pending image and
// finalized recording as one conversation turn. Submission failures
// surface on the timeline, never to the caller.
func (a *App) SendMessage(text string) {
	if err := a.requireReady(); err != nil {
		return
	}
	a.controller.Submit(a.ctx, text)
}

// StartRecording begins voice capture.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.StartRecording(a.ctx); err != nil {
		a.emitError(classifyCaptureError(err), err.Error())
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopRecording finalizes the capture into a pending audio attachment.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.StopRecording(); err != nil {
		a.emitError(domain.ErrorCodeRecording, err.Error())
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// CancelRecording discards an in-progress or finalized capture.
func (a *App) CancelRecording() domain.Status {
	if err := a.requireReady(); err != nil {
		return domain.Status{}
	}
	a.controller.CancelRecording()
	return a.controller.Status()
}

// AttachImage opens the native file dialog and stages the chosen
// image. A dismissed dialog returns an empty handle without error.
func (a *App) AttachImage() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	handle, err := a.controller.AttachImage(a.ctx)
	if err != nil {
		if errors.Is(err, media.ErrNoSelection) {
			return "", nil
		}
		a.emitError(domain.ErrorCodeImageSelect, err.Error())
		return "", err
	}
	return handle, nil
}

// RemoveImage clears the pending image attachment.
func (a *App) RemoveImage() domain.Status {
	if err := a.requireReady(); err != nil {
		return domain.Status{}
	}
	a.controller.RemoveImage()
	return a.controller.Status()
}

// SetLanguage switches the conversation language for future turns.
func (a *App) SetLanguage(code string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetLanguage(code)
}

// GetLanguages lists the selectable languages.
func (a *App) GetLanguages() []domain.Language {
	return domain.Languages()
}

// GetMessages returns the current timeline.
func (a *App) GetMessages() []domain.Message {
	if err := a.requireReady(); err != nil {
		return nil
	}
	return a.controller.Messages()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		return domain.Status{Recording: domain.RecordingStateIdle}
	}
	return a.controller.Status()
}

func (a *App) requireReady() error {
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emit(e events.Event) {
	if a.ctx == nil {
		return
	}
	switch e.Kind {
	case events.KindRecordingState:
		payload := e.Payload.(events.RecordingStatePayload)
		runtime.EventsEmit(a.ctx, eventRecording, map[string]string{
			"state":  string(payload.State),
			"reason": string(payload.Reason),
		})
	case events.KindRecordingTick:
		runtime.EventsEmit(a.ctx, eventTick, e.Payload)
	case events.KindTimeline:
		runtime.EventsEmit(a.ctx, eventTimeline, e.Payload)
	case events.KindBusy:
		runtime.EventsEmit(a.ctx, eventBusy, e.Payload)
	case events.KindError:
		payload := e.Payload.(events.ErrorPayload)
		runtime.EventsEmit(a.ctx, eventError, map[string]string{
			"code":    string(payload.Code),
			"message": errorMessage(payload.Code, payload.Detail),
			"detail":  payload.Detail,
		})
	}
}

// emitError routes an app-level failure through the same queue the
// controller uses, preserving event order.
func (a *App) emitError(code domain.ErrorCode, detail string) {
	a.queue.Publish(events.Event{Kind: events.KindError, Payload: events.ErrorPayload{Code: code, Detail: detail}})
}

func classifyCaptureError(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, domain.ErrMicPermissionDenied):
		return domain.ErrorCodeMicPermission
	case errors.Is(err, domain.ErrMicUnavailable):
		return domain.ErrorCodeMicUnavailable
	default:
		return domain.ErrorCodeRecording
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicPermission:
		return "Microphone access was denied"
	case domain.ErrorCodeMicUnavailable:
		return "No microphone is available"
	case domain.ErrorCodeRecording:
		return "Recording failed"
	case domain.ErrorCodeImageSelect:
		return "Image selection failed"
	case domain.ErrorCodeNetwork:
		return "Could not reach the assistant backend"
	case domain.ErrorCodeBackend:
		return "The assistant backend reported an error"
	case domain.ErrorCodeMalformedResponse:
		return "The assistant backend sent an unreadable response"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
