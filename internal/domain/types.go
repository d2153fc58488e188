package domain

import "time"

// Role identifies who authored a timeline entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind identifies how a timeline entry is rendered.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindAudio MessageKind = "audio"
)

// Fixed display labels for media entries.
const (
	LabelSharedImage   = "Shared an image"
	LabelSharedAudio   = "Shared an audio message"
	LabelAudioResponse = "Audio response"
)

// Message is one entry in the conversation timeline.
//
// DisplayContent is what the user sees, in the active UI language.
// CanonicalContent is the reference-language form used only when
// projecting history for the backend; it is empty until the backend
// round trip that produced it, and set at most once.
type Message struct {
	ID               string      `json:"id"`
	Role             Role        `json:"role"`
	Kind             MessageKind `json:"kind"`
	DisplayContent   string      `json:"displayContent"`
	CanonicalContent string      `json:"canonicalContent,omitempty"`
	MediaRef         string      `json:"mediaRef,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// ChatTurn is one entry of the serialized conversation history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RecordingState models the voice capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStateStopped   RecordingState = "stopped"
)

// RecordingStateReason provides a structured reason for state transitions.
type RecordingStateReason string

const (
	RecordingReasonStarted   RecordingStateReason = "recording_started"
	RecordingReasonStopped   RecordingStateReason = "recording_stopped"
	RecordingReasonCancelled RecordingStateReason = "recording_cancelled"
	RecordingReasonSubmitted RecordingStateReason = "recording_submitted"
)

// ErrorCode identifies user-surfaceable error classes.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeMicPermission     ErrorCode = "mic_permission"
	ErrorCodeMicUnavailable    ErrorCode = "mic_unavailable"
	ErrorCodeRecording         ErrorCode = "recording"
	ErrorCodeImageSelect       ErrorCode = "image_select"
	ErrorCodeNetwork           ErrorCode = "network"
	ErrorCodeBackend           ErrorCode = "backend"
	ErrorCodeMalformedResponse ErrorCode = "malformed_response"
)

// AudioPayload is a finalized voice capture ready for submission.
type AudioPayload struct {
	Data     []byte
	MIMEType string
	Filename string
}

// ImagePayload is a selected image ready for submission.
type ImagePayload struct {
	Data     []byte
	MIMEType string
	Filename string
}

// ChatRequest is the value object assembled per send.
type ChatRequest struct {
	Language string
	History  []ChatTurn
	Text     string
	Audio    *AudioPayload
	Image    *ImagePayload
}

// ChatReply is the decoded success response of the chat endpoint.
type ChatReply struct {
	ResponseText        string `json:"response_text"`
	EnglishResponseText string `json:"english_response_text"`
	TranscribedText     string `json:"transcribed_text,omitempty"`
	EnglishUserText     string `json:"english_user_text,omitempty"`
	AudioURL            string `json:"audio_url,omitempty"`
}

// Status summarizes the controller state for the UI.
type Status struct {
	Recording       RecordingState `json:"recording"`
	ElapsedSeconds  int            `json:"elapsedSeconds"`
	Busy            bool           `json:"busy"`
	HasPendingImage bool           `json:"hasPendingImage"`
	HasPendingAudio bool           `json:"hasPendingAudio"`
	Language        string         `json:"language"`
	Message         string         `json:"message,omitempty"`
}

// Language is a selectable UI language.
type Language struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// Languages lists the supported UI languages.
func Languages() []Language {
	return []Language{
		{Label: "English", Code: "en"},
		{Label: "Hindi", Code: "hi"},
		{Label: "Marathi", Code: "mr"},
		{Label: "Kannada", Code: "kn"},
		{Label: "Tamil", Code: "ta"},
	}
}

// ValidLanguage reports whether code is a supported language code.
func ValidLanguage(code string) bool {
	for _, lang := range Languages() {
		if lang.Code == code {
			return true
		}
	}
	return false
}
