package media

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PreviewPathPrefix is the asset-server path previews are served under.
const PreviewPathPrefix = "/media/"

type previewEntry struct {
	data     []byte
	mimeType string
}

// PreviewStore issues revocable preview handles over media bytes and
// serves them to the frontend through the Wails asset server.
//
// A handle must be released exactly once; releasing an unknown or
// already-released handle is a no-op so ownership transfers stay safe.
type PreviewStore struct {
	mu      sync.Mutex
	entries map[string]previewEntry
}

func NewPreviewStore() *PreviewStore {
	return &PreviewStore{entries: make(map[string]previewEntry)}
}

// Put registers data and returns its preview handle.
func (s *PreviewStore) Put(data []byte, mimeType string) string {
	handle := PreviewPathPrefix + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[handle] = previewEntry{data: data, mimeType: mimeType}
	return handle
}

// Release revokes a handle issued by Put. Handles pointing at remote
// media were never registered here and pass through as a no-op.
func (s *PreviewStore) Release(handle string) {
	if !strings.HasPrefix(handle, PreviewPathPrefix) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, handle)
}

// Len reports the number of live handles.
func (s *PreviewStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *PreviewStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	entry, ok := s.entries[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if entry.mimeType != "" {
		w.Header().Set("Content-Type", entry.mimeType)
	}
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(entry.data)
}
