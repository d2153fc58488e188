package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"agrivoice/internal/domain"
	"agrivoice/internal/ports"
	"agrivoice/internal/recorder"
)

func TestSubmitTextOnlyExchange(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: domain.ChatReply{
		ResponseText:        "Sow in Nov.",
		EnglishResponseText: "Sow in Nov.",
		EnglishUserText:     "When to sow wheat?",
	}}
	h := newHarness(t, chat, nil)

	h.controller.Submit(context.Background(), "When to sow wheat?")

	msgs := h.controller.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].CanonicalContent != "When to sow wheat?" {
		t.Fatalf("user entry not tagged: %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].CanonicalContent != "Sow in Nov." {
		t.Fatalf("unexpected assistant entry: %+v", msgs[1])
	}

	if chat.lastRequest.Language != "en" {
		t.Fatalf("unexpected language: %q", chat.lastRequest.Language)
	}
	if len(chat.lastRequest.History) != 0 {
		t.Fatalf("first turn must send empty history, got %v", chat.lastRequest.History)
	}
	if h.controller.Status().Busy {
		t.Fatalf("busy flag must clear after submission")
	}
}

func TestSubmitSendsPriorTurnsOnlyAsHistory(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: domain.ChatReply{
		ResponseText:        "answer one",
		EnglishResponseText: "answer one",
		EnglishUserText:     "question one",
	}}
	h := newHarness(t, chat, nil)

	h.controller.Submit(context.Background(), "question one")

	chat.reply = domain.ChatReply{
		ResponseText:        "answer two",
		EnglishResponseText: "answer two",
		EnglishUserText:     "question two",
	}
	h.controller.Submit(context.Background(), "question two")

	history := chat.lastRequest.History
	if len(history) != 2 {
		t.Fatalf("expected 2 prior turns, got %d: %v", len(history), history)
	}
	if history[0].Role != "user" || history[0].Content != "question one" {
		t.Fatalf("unexpected first turn: %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "answer one" {
		t.Fatalf("unexpected second turn: %+v", history[1])
	}
}

func TestSubmitAudioOnlyTranscriptionFlow(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: domain.ChatReply{
		ResponseText:        "नवंबर में",
		EnglishResponseText: "In November.",
		TranscribedText:     "फसल कब बोयें?",
		EnglishUserText:     "When to sow the crop?",
	}}
	h := newHarness(t, chat, [][]byte{[]byte("pcm")})

	if err := h.controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := h.controller.StopRecording(); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}
	h.controller.Submit(context.Background(), "")

	if chat.lastRequest.Audio == nil {
		t.Fatalf("expected audio payload in request")
	}
	if chat.lastRequest.Text != "" {
		t.Fatalf("no text expected, got %q", chat.lastRequest.Text)
	}

	msgs := h.controller.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected audio + transcription + assistant, got %d", len(msgs))
	}
	if msgs[0].Kind != domain.MessageKindAudio || msgs[0].DisplayContent != domain.LabelSharedAudio {
		t.Fatalf("unexpected audio entry: %+v", msgs[0])
	}
	if msgs[1].DisplayContent != "(Transcribed) फसल कब बोयें?" {
		t.Fatalf("unexpected transcription display: %q", msgs[1].DisplayContent)
	}
	if msgs[1].CanonicalContent != "When to sow the crop?" {
		t.Fatalf("transcription must carry canonical text: %+v", msgs[1])
	}
	for _, m := range msgs {
		if m.Role == domain.RoleUser && m.Kind == domain.MessageKindText && m.CanonicalContent == "" {
			t.Fatalf("untagged user text entry remains: %+v", m)
		}
	}

	if h.controller.Status().Recording != domain.RecordingStateIdle {
		t.Fatalf("recording session must be cleared by submission")
	}
}

func TestSubmitCombinedInputsOrderAndVoiceReply(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: domain.ChatReply{
		ResponseText:        "reply",
		EnglishResponseText: "reply",
		TranscribedText:     "spoken words",
		EnglishUserText:     "typed words",
		AudioURL:            "/api/audio/reply.wav",
	}}
	h := newHarness(t, chat, [][]byte{[]byte("pcm")})

	h.pickerSelection(&ports.ImageSelection{Data: []byte("png"), MIMEType: "image/png", Filename: "leaf.png"})
	if _, err := h.controller.AttachImage(context.Background()); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := h.controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := h.controller.StopRecording(); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	h.controller.Submit(context.Background(), "typed words")

	msgs := h.controller.Messages()
	wantKinds := []domain.MessageKind{
		domain.MessageKindImage, // optimistic, in fixed order
		domain.MessageKindAudio,
		domain.MessageKindText,
		domain.MessageKindText, // transcription appended on response
		domain.MessageKindText, // assistant answer
		domain.MessageKindAudio, // assistant voice reply
	}
	if len(msgs) != len(wantKinds) {
		t.Fatalf("expected %d entries, got %d", len(wantKinds), len(msgs))
	}
	for i, kind := range wantKinds {
		if msgs[i].Kind != kind {
			t.Fatalf("entry %d: got kind %s, want %s", i, msgs[i].Kind, kind)
		}
	}

	// Typed entry is tagged retroactively and precedes the transcription.
	if msgs[2].CanonicalContent != "typed words" {
		t.Fatalf("typed entry not tagged: %+v", msgs[2])
	}
	if !strings.HasPrefix(msgs[3].DisplayContent, "(Transcribed) ") {
		t.Fatalf("unexpected transcription entry: %+v", msgs[3])
	}
	if msgs[5].MediaRef != "http://backend.test/api/audio/reply.wav" {
		t.Fatalf("voice reply must use resolved URL, got %q", msgs[5].MediaRef)
	}

	if chat.lastRequest.Image == nil || chat.lastRequest.Audio == nil || chat.lastRequest.Text != "typed words" {
		t.Fatalf("request missing inputs: %+v", chat.lastRequest)
	}
	status := h.controller.Status()
	if status.HasPendingImage || status.HasPendingAudio {
		t.Fatalf("input slots must be cleared: %+v", status)
	}
}

func TestSubmitEmptyInputsIsNoOp(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	h := newHarness(t, chat, nil)

	h.controller.Submit(context.Background(), "   ")

	if h.controller.Status().Busy {
		t.Fatalf("busy must stay false")
	}
	if len(h.controller.Messages()) != 0 {
		t.Fatalf("timeline must stay empty")
	}
	if chat.calls != 0 {
		t.Fatalf("no backend call expected")
	}
}

func TestSubmitWhileBusyIsNoOp(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	chat := &fakeChat{
		reply: domain.ChatReply{ResponseText: "ok", EnglishResponseText: "ok", EnglishUserText: "first"},
		block: release,
	}
	h := newHarness(t, chat, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.controller.Submit(context.Background(), "first")
	}()

	<-chat.entered
	h.controller.Submit(context.Background(), "second")
	close(release)
	<-done

	if chat.calls != 1 {
		t.Fatalf("in-flight submission must reject a second submit, got %d calls", chat.calls)
	}
	msgs := h.controller.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected only the first exchange, got %d entries", len(msgs))
	}
}

func TestSubmitBackendFailureBecomesInlineBubble(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{err: &domain.BackendError{Status: 500, Message: "model unavailable"}}
	h := newHarness(t, chat, nil)

	h.controller.Submit(context.Background(), "hello")

	msgs := h.controller.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user entry + error bubble, got %d", len(msgs))
	}
	bubble := msgs[1]
	if bubble.Role != domain.RoleAssistant || bubble.Kind != domain.MessageKindText {
		t.Fatalf("unexpected bubble: %+v", bubble)
	}
	if !strings.Contains(bubble.DisplayContent, "model unavailable") {
		t.Fatalf("bubble must embed the error: %q", bubble.DisplayContent)
	}
	if !strings.Contains(bubble.DisplayContent, "backend server is running") {
		t.Fatalf("bubble must hint at backend reachability: %q", bubble.DisplayContent)
	}
	if bubble.CanonicalContent != "" {
		t.Fatalf("error bubble must not enter history")
	}
	if h.controller.Status().Busy {
		t.Fatalf("busy must clear after failure")
	}

	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeBackend {
		t.Fatalf("expected one backend error event, got %+v", errs)
	}
}

func TestSubmitFailureClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want domain.ErrorCode
	}{
		{"network", fmt.Errorf("%w: connection refused", domain.ErrNetwork), domain.ErrorCodeNetwork},
		{"malformed", fmt.Errorf("%w: missing response_text", domain.ErrMalformedResponse), domain.ErrorCodeMalformedResponse},
		{"backend", &domain.BackendError{Status: 503, Message: "overloaded"}, domain.ErrorCodeBackend},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyFailure(tc.err); got != tc.want {
				t.Fatalf("classifyFailure = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAttachImageReplacesPendingSlot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeChat{}, nil)

	h.pickerSelection(&ports.ImageSelection{Data: []byte("one"), MIMEType: "image/png", Filename: "a.png"})
	first, err := h.controller.AttachImage(context.Background())
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	h.pickerSelection(&ports.ImageSelection{Data: []byte("two"), MIMEType: "image/png", Filename: "b.png"})
	second, err := h.controller.AttachImage(context.Background())
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	if first == second {
		t.Fatalf("expected distinct preview handles")
	}
	if !h.previews.wasReleased(first) {
		t.Fatalf("replaced slot must release its preview")
	}
	if h.previews.wasReleased(second) {
		t.Fatalf("active preview must stay live")
	}
}

func TestAttachImageFailureChangesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeChat{}, nil)
	h.picker.err = errors.New("dialog dismissed")

	if _, err := h.controller.AttachImage(context.Background()); err == nil {
		t.Fatalf("expected picker error")
	}
	if h.controller.Status().HasPendingImage {
		t.Fatalf("failed selection must not set the slot")
	}
	if h.previews.puts != 0 {
		t.Fatalf("no preview must be issued")
	}
}

func TestRemoveImageReleasesPreview(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeChat{}, nil)
	h.pickerSelection(&ports.ImageSelection{Data: []byte("one"), MIMEType: "image/png", Filename: "a.png"})
	handle, err := h.controller.AttachImage(context.Background())
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	h.controller.RemoveImage()
	h.controller.RemoveImage() // second call is a no-op

	if !h.previews.wasReleased(handle) {
		t.Fatalf("remove must release the preview")
	}
	if h.previews.releaseCount(handle) != 1 {
		t.Fatalf("preview released more than once")
	}
}

func TestSetLanguage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeChat{}, nil)
	if err := h.controller.SetLanguage("hi"); err != nil {
		t.Fatalf("set language failed: %v", err)
	}
	if h.controller.Language() != "hi" {
		t.Fatalf("language not applied")
	}
	if err := h.controller.SetLanguage("xx"); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
}

func TestGreetIsIgnoredOnceConversationStarted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeChat{}, nil)
	h.controller.Greet()
	h.controller.Greet()

	msgs := h.controller.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected a single greeting, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleAssistant || msgs[0].CanonicalContent != "" {
		t.Fatalf("greeting must be assistant text outside history: %+v", msgs[0])
	}
	if len(h.controller.timeline.ProjectHistory()) != 0 {
		t.Fatalf("greeting must not enter projected history")
	}
}

func TestDisposeReleasesEveryHandle(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: domain.ChatReply{
		ResponseText:        "ok",
		EnglishResponseText: "ok",
		AudioURL:            "/api/audio/reply.wav",
	}}
	h := newHarness(t, chat, [][]byte{[]byte("pcm")})

	h.pickerSelection(&ports.ImageSelection{Data: []byte("png"), MIMEType: "image/png", Filename: "a.png"})
	if _, err := h.controller.AttachImage(context.Background()); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := h.controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.StopRecording(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	h.controller.Submit(context.Background(), "text")

	h.controller.Dispose()

	if live := h.previews.liveCount(); live != 0 {
		t.Fatalf("expected all local previews released, %d still live", live)
	}
}

// --- harness and fakes ---

type harness struct {
	controller *SessionController
	events     *fakeEventSink
	previews   *fakePreviewStore
	picker     *fakePicker
}

func newHarness(t *testing.T, chat *fakeChat, audioChunks [][]byte) *harness {
	t.Helper()
	if chat.entered == nil {
		chat.entered = make(chan struct{}, 8)
	}

	events := &fakeEventSink{}
	previews := &fakePreviewStore{}
	picker := &fakePicker{}

	var sessions []ports.AudioSession
	if audioChunks != nil {
		sessions = append(sessions, &fakeAudioSession{chunks: audioChunks})
	}
	rec := recorder.New(&fakeAudioCapture{sessions: sessions}, previews, events, recorder.Config{})

	controller := NewSessionController(chat, picker, rec, previews, events, Config{DefaultLanguage: "en"})
	return &harness{controller: controller, events: events, previews: previews, picker: picker}
}

func (h *harness) pickerSelection(sel *ports.ImageSelection) {
	h.picker.selection = sel
	h.picker.err = nil
}

type fakeChat struct {
	mu          sync.Mutex
	reply       domain.ChatReply
	err         error
	calls       int
	lastRequest domain.ChatRequest
	block       chan struct{}
	entered     chan struct{}
}

func (f *fakeChat) Send(_ context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	f.mu.Lock()
	f.calls++
	f.lastRequest = req
	block := f.block
	reply, err := f.reply, f.err
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if block != nil {
		<-block
	}
	return reply, err
}

func (f *fakeChat) ResolveMediaURL(ref string) string {
	if ref == "" {
		return ""
	}
	return "http://backend.test" + ref
}

type fakePicker struct {
	selection *ports.ImageSelection
	err       error
}

func (f *fakePicker) Pick(_ context.Context) (ports.ImageSelection, error) {
	if f.err != nil {
		return ports.ImageSelection{}, f.err
	}
	if f.selection == nil {
		return ports.ImageSelection{}, errors.New("no selection configured")
	}
	return *f.selection, nil
}

type fakePreviewStore struct {
	mu       sync.Mutex
	puts     int
	live     map[string]bool
	released map[string]int
}

func (f *fakePreviewStore) Put(_ []byte, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.live == nil {
		f.live = make(map[string]bool)
	}
	handle := fmt.Sprintf("/media/preview-%d", f.puts)
	f.live[handle] = true
	return handle
}

func (f *fakePreviewStore) Release(handle string) {
	if !strings.HasPrefix(handle, "/media/") {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released == nil {
		f.released = make(map[string]int)
	}
	if f.live[handle] {
		delete(f.live, handle)
		f.released[handle]++
	}
}

func (f *fakePreviewStore) wasReleased(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[handle] > 0
}

func (f *fakePreviewStore) releaseCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[handle]
}

func (f *fakePreviewStore) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fakeAudioCapture struct {
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []domain.RecordingState
	busy   []bool
	errs   []errEvent
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) RecordingStateChanged(state domain.RecordingState, _ domain.RecordingStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeEventSink) RecordingTick(_ int, _ string) {}

func (f *fakeEventSink) TimelineChanged(_ []domain.Message) {}

func (f *fakeEventSink) BusyChanged(busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = append(f.busy, busy)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errs))
	copy(out, f.errs)
	return out
}
