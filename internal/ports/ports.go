package ports

import (
	"context"
	"io"

	"agrivoice/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live microphone capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// ImageSelection is the outcome of a user file choice.
type ImageSelection struct {
	Data     []byte
	MIMEType string
	Filename string
}

// ImagePicker lets the user choose an image file.
type ImagePicker interface {
	Pick(ctx context.Context) (ImageSelection, error)
}

// PreviewStore issues and revokes local preview handles for media bytes.
type PreviewStore interface {
	Put(data []byte, mimeType string) string
	Release(handle string)
}

// ChatService performs the request/response exchange with the backend.
type ChatService interface {
	Send(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error)
	// ResolveMediaURL turns a backend-relative media path into a URL the
	// frontend can fetch.
	ResolveMediaURL(ref string) string
}

// EventSink delivers controller state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, reason domain.RecordingStateReason)
	RecordingTick(seconds int, formatted string)
	TimelineChanged(messages []domain.Message)
	BusyChanged(busy bool)
	SessionError(code domain.ErrorCode, detail string)
}
