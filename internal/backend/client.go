// ABOUTME: HTTP client for the inference backend's streaming chat-messages endpoint
// ABOUTME: Sends a message and returns the decoded event channel plus a cancellation handle

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/stream"
)

// Client talks to the inference and conversation-listing backends.
type Client struct {
	httpClient     *http.Client
	streamClient   *http.Client
	baseURL        string
	appID          string
	apiKey         string
	user           string
	logger         *slog.Logger
}

// NewClient creates a backend client. The user string identifies the
// end user to the backend (stable per install). Pass nil logger for
// default.
func NewClient(cfg config.BackendConfig, user string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 30 * time.Second
	}
	if user == "" {
		user = "parley-user"
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		// No client timeout on the streaming path: a response may
		// stream for longer than any single-request budget. Stream
		// lifetime is bounded by the caller's context.
		streamClient: &http.Client{Timeout: cfg.StreamTimeout},
		baseURL:      cfg.BaseURL,
		appID:        cfg.AppID,
		apiKey:       cfg.APIKey,
		user:         user,
		logger:       logger.With("component", "backend"),
	}
}

// AppID returns the application identity this client is bound to.
func (c *Client) AppID() string {
	return c.appID
}

// ChatRequest is the outbound payload of one send. File-bearing input
// values must already be converted to the backend's file-reference
// shape (see engine.buildInputs).
type ChatRequest struct {
	Inputs         map[string]any
	Query          string
	ConversationID string // empty for a not-yet-created conversation
	Files          []convo.FileRef
}

// chatMessagePayload is the wire shape of POST /chat-messages.
type chatMessagePayload struct {
	Inputs         map[string]any  `json:"inputs"`
	Query          string          `json:"query"`
	ConversationID *string         `json:"conversation_id"`
	ResponseMode   string          `json:"response_mode"`
	User           string          `json:"user"`
	Files          []convo.FileRef `json:"files,omitempty"`
}

// SendChatMessage issues a streaming send. On success it returns the
// event channel (closed when the stream ends) and a cancel handle that
// releases the underlying stream. Cancellation is cooperative: the
// channel still closes on its own after cancel is called.
func (c *Client) SendChatMessage(ctx context.Context, req *ChatRequest) (<-chan *stream.Event, context.CancelFunc, error) {
	payload := chatMessagePayload{
		Inputs:       req.Inputs,
		Query:        req.Query,
		ResponseMode: "streaming",
		User:         c.user,
		Files:        req.Files,
	}
	if payload.Inputs == nil {
		payload.Inputs = map[string]any{}
	}
	if req.ConversationID != "" {
		id := req.ConversationID
		payload.ConversationID = &id
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(bodyBytes))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("sending message: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := decodeAPIError(resp)
		cancel()
		return nil, nil, apiErr
	}

	c.logger.Debug("chat message stream opened",
		"conversation_id", req.ConversationID)

	events := stream.Decode(streamCtx, resp.Body, c.logger)

	// Close the response body once the decoder is done with it.
	out := make(chan *stream.Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for event := range events {
			out <- event
		}
	}()

	return out, cancel, nil
}

// decodeAPIError extracts the backend's error message from a non-200
// response body.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, parsed.Message)
		}
		if parsed.Error != "" {
			return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, parsed.Error)
		}
	}
	return fmt.Errorf("backend returned status %d", resp.StatusCode)
}
