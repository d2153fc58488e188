package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"agrivoice/internal/domain"
	"agrivoice/internal/ports"
	"agrivoice/internal/recorder"
	"agrivoice/internal/timeline"
)

// ErrUnknownLanguage rejects language codes outside the supported set.
var ErrUnknownLanguage = errors.New("unknown language code")

// Config controls session behavior.
type Config struct {
	DefaultLanguage string
}

// SessionController is the top-level conversation controller. It
// exclusively owns the message timeline, the pending image slot, the
// voice recorder, the active language, and the busy flag; the capture
// and chat collaborators are stateless services it invokes.
type SessionController struct {
	chat     ports.ChatService
	picker   ports.ImagePicker
	previews ports.PreviewStore
	events   ports.EventSink
	recorder *recorder.Recorder
	timeline *timeline.Timeline

	mu           sync.Mutex
	busy         bool
	language     string
	pendingImage *pendingImage
}

type pendingImage struct {
	payload domain.ImagePayload
	preview string
}

func NewSessionController(
	chat ports.ChatService,
	picker ports.ImagePicker,
	rec *recorder.Recorder,
	previews ports.PreviewStore,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	language := cfg.DefaultLanguage
	if !domain.ValidLanguage(language) {
		language = "en"
	}
	return &SessionController{
		chat:     chat,
		picker:   picker,
		previews: previews,
		events:   events,
		recorder: rec,
		timeline: timeline.New(),
		language: language,
	}
}

// Greet opens the conversation with an assistant welcome. The greeting
// carries no canonical content, so it never enters projected history.
func (c *SessionController) Greet() {
	if c.timeline.Len() > 0 {
		return
	}
	c.timeline.Append(timeline.NewMessage(
		domain.RoleAssistant,
		domain.MessageKindText,
		"Hello! I'm AgriVoice. How can I help you with your farm today?",
	))
	c.events.TimelineChanged(c.timeline.Messages())
}

// StartRecording begins a voice capture. A failure to acquire the
// microphone leaves all state untouched and is returned to the caller.
func (c *SessionController) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recorder.Start(ctx)
}

// StopRecording finalizes the capture into a pending audio payload.
func (c *SessionController) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recorder.Stop()
}

// CancelRecording discards any in-progress or finalized capture.
func (c *SessionController) CancelRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder.Cancel()
}

// AttachImage lets the user choose an image and holds it in the
// single pending-attachment slot, replacing (and releasing) any
// previous choice. Returns the preview handle for the input surface.
// Selection failure or cancellation changes no state.
func (c *SessionController) AttachImage(ctx context.Context) (string, error) {
	selection, err := c.picker.Pick(ctx)
	if err != nil {
		return "", err
	}

	preview := c.previews.Put(selection.Data, selection.MIMEType)

	c.mu.Lock()
	if c.pendingImage != nil {
		c.previews.Release(c.pendingImage.preview)
	}
	c.pendingImage = &pendingImage{
		payload: domain.ImagePayload{
			Data:     selection.Data,
			MIMEType: selection.MIMEType,
			Filename: selection.Filename,
		},
		preview: preview,
	}
	c.mu.Unlock()

	return preview, nil
}

// RemoveImage clears the pending attachment and releases its preview.
func (c *SessionController) RemoveImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingImage == nil {
		return
	}
	c.previews.Release(c.pendingImage.preview)
	c.pendingImage = nil
}

// SetLanguage switches the active UI language.
func (c *SessionController) SetLanguage(code string) error {
	if !domain.ValidLanguage(code) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = code
	return nil
}

// Language returns the active UI language code.
func (c *SessionController) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Messages returns a snapshot of the timeline.
func (c *SessionController) Messages() []domain.Message {
	return c.timeline.Messages()
}

// Status summarizes controller state for the UI.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		Recording:       c.recorder.State(),
		ElapsedSeconds:  c.recorder.Elapsed(),
		Busy:            c.busy,
		HasPendingImage: c.pendingImage != nil,
		HasPendingAudio: c.recorder.HasResult(),
		Language:        c.language,
	}
}

// Submit performs one request/response exchange with the backend.
//
// It is a no-op while a previous submission is in flight, or when
// there is no text, pending image, and finalized recording. Present
// inputs are rendered optimistically in image, audio, text order; the
// history sent as context is projected from the timeline before these
// entries. Input slots are cleared up front so the surface is ready
// for the next turn; their preview handles transfer to the appended
// timeline entries. Submission-path errors never propagate: they
// become a single synthetic assistant message.
func (c *SessionController) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return
	}
	img := c.pendingImage
	if text == "" && img == nil && !c.recorder.HasResult() {
		c.mu.Unlock()
		return
	}

	// Prior turns only: project before the optimistic append.
	history := c.timeline.ProjectHistory()

	recording := c.recorder.TakeResult()
	c.pendingImage = nil

	var entries []domain.Message
	if img != nil {
		m := timeline.NewMessage(domain.RoleUser, domain.MessageKindImage, domain.LabelSharedImage)
		m.MediaRef = img.preview
		entries = append(entries, m)
	}
	if recording != nil {
		m := timeline.NewMessage(domain.RoleUser, domain.MessageKindAudio, domain.LabelSharedAudio)
		m.MediaRef = recording.Preview
		entries = append(entries, m)
	}
	if text != "" {
		entries = append(entries, timeline.NewMessage(domain.RoleUser, domain.MessageKindText, text))
	}
	c.timeline.Append(entries...)

	language := c.language
	c.busy = true
	c.mu.Unlock()

	c.events.TimelineChanged(c.timeline.Messages())
	c.events.BusyChanged(true)

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
		c.events.BusyChanged(false)
	}()

	req := domain.ChatRequest{
		Language: language,
		History:  history,
		Text:     text,
	}
	if recording != nil {
		payload := recording.Payload
		req.Audio = &payload
	}
	if img != nil {
		payload := img.payload
		req.Image = &payload
	}

	reply, err := c.chat.Send(ctx, req)
	if err != nil {
		c.applyFailure(err)
		return
	}
	c.applyReply(reply, text != "", recording != nil)
}

// applyReply merges a successful backend response onto the timeline:
// transcription append, retroactive tag of the typed entry, assistant
// text, then the optional assistant voice reply.
func (c *SessionController) applyReply(reply domain.ChatReply, hadText bool, hadAudio bool) {
	if hadAudio && reply.TranscribedText != "" {
		m := timeline.NewMessage(domain.RoleUser, domain.MessageKindText, "(Transcribed) "+reply.TranscribedText)
		m.CanonicalContent = reply.EnglishUserText
		c.timeline.Append(m)
	}

	if hadText {
		c.timeline.TagLastUntaggedUserText(reply.EnglishUserText)
	}

	answer := timeline.NewMessage(domain.RoleAssistant, domain.MessageKindText, reply.ResponseText)
	answer.CanonicalContent = reply.EnglishResponseText
	c.timeline.Append(answer)

	if reply.AudioURL != "" {
		voice := timeline.NewMessage(domain.RoleAssistant, domain.MessageKindAudio, domain.LabelAudioResponse)
		voice.MediaRef = c.chat.ResolveMediaURL(reply.AudioURL)
		c.timeline.Append(voice)
	}

	c.events.TimelineChanged(c.timeline.Messages())
}

// applyFailure converts a submission-path error into a single inline
// assistant bubble; the already-cleared input state stays cleared and
// nothing is retried.
func (c *SessionController) applyFailure(err error) {
	c.events.SessionError(classifyFailure(err), err.Error())

	bubble := timeline.NewMessage(
		domain.RoleAssistant,
		domain.MessageKindText,
		fmt.Sprintf("Error: %v. Make sure the backend server is running.", err),
	)
	c.timeline.Append(bubble)
	c.events.TimelineChanged(c.timeline.Messages())
}

func classifyFailure(err error) domain.ErrorCode {
	var backendErr *domain.BackendError
	switch {
	case errors.As(err, &backendErr):
		return domain.ErrorCodeBackend
	case errors.Is(err, domain.ErrMalformedResponse):
		return domain.ErrorCodeMalformedResponse
	default:
		return domain.ErrorCodeNetwork
	}
}

// Dispose releases every handle the session owns: timeline media
// previews, the pending image, and any capture state.
func (c *SessionController) Dispose() {
	c.mu.Lock()
	c.recorder.Cancel()
	if c.pendingImage != nil {
		c.previews.Release(c.pendingImage.preview)
		c.pendingImage = nil
	}
	c.mu.Unlock()

	c.timeline.ReleaseMediaRefs(c.previews.Release)
}
