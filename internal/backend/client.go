package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agrivoice/internal/domain"
)

// Client talks to the assistant chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000/api"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts a multipart submission to the chat endpoint and decodes
// the reply. History is serialized as a JSON array of {role, content}.
func (c *Client) Send(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("language", req.Language); err != nil {
		return domain.ChatReply{}, fmt.Errorf("failed to write language field: %w", err)
	}

	history := req.History
	if history == nil {
		history = []domain.ChatTurn{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("failed to encode history: %w", err)
	}
	if err := mw.WriteField("conversation_history", string(encoded)); err != nil {
		return domain.ChatReply{}, fmt.Errorf("failed to write history field: %w", err)
	}

	if req.Text != "" {
		if err := mw.WriteField("text", req.Text); err != nil {
			return domain.ChatReply{}, fmt.Errorf("failed to write text field: %w", err)
		}
	}
	if req.Audio != nil {
		if err := writeFilePart(mw, "audio", req.Audio.Filename, req.Audio.Data); err != nil {
			return domain.ChatReply{}, err
		}
	}
	if req.Image != nil {
		if err := writeFilePart(mw, "image", req.Image.Filename, req.Image.Data); err != nil {
			return domain.ChatReply{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return domain.ChatReply{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", &buf)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ChatReply{}, &domain.BackendError{
			Status:  resp.StatusCode,
			Message: errorMessageFromBody(body, resp.StatusCode),
		}
	}

	var reply domain.ChatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return domain.ChatReply{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(reply.ResponseText) == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: missing response_text", domain.ErrMalformedResponse)
	}
	return reply, nil
}

// ResolveMediaURL turns a relative media path from the backend into an
// absolute URL against the configured origin. Absolute refs pass
// through unchanged.
func (c *Client) ResolveMediaURL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.Contains(ref, "://") {
		return ref
	}
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Scheme == "" {
		return ref
	}
	return parsed.Scheme + "://" + parsed.Host + ref
}

func writeFilePart(mw *multipart.Writer, field string, filename string, data []byte) error {
	if filename == "" {
		filename = field
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create %s form file: %w", field, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s payload: %w", field, err)
	}
	return nil
}

// errorMessageFromBody extracts the structured error field, falling
// back to a generic status description.
func errorMessageFromBody(body []byte, status int) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		return parsed.Error
	}
	return fmt.Sprintf("backend returned status %d", status)
}
