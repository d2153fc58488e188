package timeline

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agrivoice/internal/domain"
)

// Timeline is the append-only ordered log of conversation entries.
// Entries are immutable after append except for the single retroactive
// patch applied by TagLastUntaggedUserText.
type Timeline struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func New() *Timeline {
	return &Timeline{}
}

// NewMessage builds a timeline entry with a fresh ID.
func NewMessage(role domain.Role, kind domain.MessageKind, display string) domain.Message {
	return domain.Message{
		ID:             uuid.NewString(),
		Role:           role,
		Kind:           kind,
		DisplayContent: display,
		CreatedAt:      time.Now().UTC(),
	}
}

// Append adds entries at the tail, preserving the given order.
func (t *Timeline) Append(msgs ...domain.Message) {
	if len(msgs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msgs...)
}

// TagLastUntaggedUserText sets the canonical content of the most
// recent user text entry that has none. The canonical form of a typed
// utterance is only known after the backend responds, so it must be
// attached to the entry that was optimistically rendered before the
// call completed. Returns false if no eligible entry exists, which
// also guards against double-tagging.
func (t *Timeline) TagLastUntaggedUserText(canonical string) bool {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.msgs) - 1; i >= 0; i-- {
		m := &t.msgs[i]
		if m.Role == domain.RoleUser && m.Kind == domain.MessageKindText && m.CanonicalContent == "" {
			m.CanonicalContent = canonical
			return true
		}
	}
	return false
}

// ProjectHistory returns the canonical conversation history to send as
// backend context: text entries with canonical content, in order. The
// raw display text never enters history, keeping the backend context
// language-normalized regardless of the active UI language.
func (t *Timeline) ProjectHistory() []domain.ChatTurn {
	t.mu.Lock()
	defer t.mu.Unlock()

	var history []domain.ChatTurn
	for _, m := range t.msgs {
		if m.Kind != domain.MessageKindText || m.CanonicalContent == "" {
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}
		history = append(history, domain.ChatTurn{Role: role, Content: m.CanonicalContent})
	}
	return history
}

// Messages returns a snapshot of all entries in insertion order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// ReleaseMediaRefs passes every entry's media handle to release, for
// disposal of the owning session.
func (t *Timeline) ReleaseMediaRefs(release func(handle string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.msgs {
		if m.MediaRef != "" {
			release(m.MediaRef)
		}
	}
}
