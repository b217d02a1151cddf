// ABOUTME: REST operations against the conversation listing/history backend
// ABOUTME: Conversations, app parameters, chat history, naming, and feedback submission

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/transcript"
)

// AppParams is the subset of the backend's app parameters the engine
// consumes: the opening statement, suggested questions, and the input
// variable form.
type AppParams struct {
	OpeningStatement   string
	SuggestedQuestions []string
	Variables          []convo.PromptVariable
}

// HistoryMessage is one persisted exchange fetched from the history
// backend, minus in-flight-only fields.
type HistoryMessage struct {
	ID            string
	Query         string
	Answer        string
	Feedback      *transcript.Feedback
	MessageFiles  []transcript.MessageFile
	AgentThoughts []transcript.AgentThought
}

// FetchConversations returns the known conversations, newest first.
func (c *Client) FetchConversations(ctx context.Context) ([]*convo.Conversation, error) {
	var wire struct {
		Data []struct {
			ID           string         `json:"id"`
			Name         string         `json:"name"`
			Introduction string         `json:"introduction"`
			Inputs       map[string]any `json:"inputs"`
			CreatedAt    int64          `json:"created_at"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/conversations", url.Values{"limit": {"100"}}, &wire); err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}

	conversations := make([]*convo.Conversation, 0, len(wire.Data))
	for _, item := range wire.Data {
		conversations = append(conversations, &convo.Conversation{
			ID:           item.ID,
			Name:         item.Name,
			Introduction: item.Introduction,
			Inputs:       inputsFromWire(item.Inputs),
			CreatedAt:    time.Unix(item.CreatedAt, 0),
		})
	}
	return conversations, nil
}

// FetchAppParams returns the app's opening statement, suggested
// questions, and user input form.
func (c *Client) FetchAppParams(ctx context.Context) (*AppParams, error) {
	var wire struct {
		OpeningStatement   string           `json:"opening_statement"`
		SuggestedQuestions []string         `json:"suggested_questions"`
		UserInputForm      []map[string]any `json:"user_input_form"`
	}
	if err := c.getJSON(ctx, "/parameters", nil, &wire); err != nil {
		return nil, fmt.Errorf("fetching app parameters: %w", err)
	}

	params := &AppParams{
		OpeningStatement:   wire.OpeningStatement,
		SuggestedQuestions: wire.SuggestedQuestions,
	}
	// Each form item is keyed by control type: text-input, paragraph,
	// select, file, file-list. Only the common fields matter here.
	for _, item := range wire.UserInputForm {
		for _, raw := range item {
			control, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			variable := &convo.PromptVariable{}
			if v, ok := control["variable"].(string); ok {
				variable.Key = v
			}
			if v, ok := control["label"].(string); ok {
				variable.Name = v
			}
			if v, ok := control["required"].(bool); ok {
				variable.Required = v
			}
			if variable.Key != "" {
				params.Variables = append(params.Variables, *variable)
			}
		}
	}
	return params, nil
}

// FetchChatHistory returns the persisted exchanges of a conversation in
// chronological order, with agent thoughts sorted by position and
// thought file ids joined with full file info.
func (c *Client) FetchChatHistory(ctx context.Context, conversationID string) ([]HistoryMessage, error) {
	var wire struct {
		Data []struct {
			ID       string `json:"id"`
			Query    string `json:"query"`
			Answer   string `json:"answer"`
			Feedback *struct {
				Rating string `json:"rating"`
			} `json:"feedback"`
			MessageFiles []struct {
				ID        string `json:"id"`
				Type      string `json:"type"`
				URL       string `json:"url"`
				BelongsTo string `json:"belongs_to"`
			} `json:"message_files"`
			AgentThoughts []struct {
				ID       string   `json:"id"`
				Thought  string   `json:"thought"`
				Position int      `json:"position"`
				Files    []string `json:"message_files"`
			} `json:"agent_thoughts"`
		} `json:"data"`
	}
	query := url.Values{"conversation_id": {conversationID}, "limit": {"100"}}
	if err := c.getJSON(ctx, "/messages", query, &wire); err != nil {
		return nil, fmt.Errorf("fetching chat history: %w", err)
	}

	messages := make([]HistoryMessage, 0, len(wire.Data))
	for _, item := range wire.Data {
		msg := HistoryMessage{
			ID:     item.ID,
			Query:  item.Query,
			Answer: item.Answer,
		}
		if item.Feedback != nil && item.Feedback.Rating != "" {
			msg.Feedback = &transcript.Feedback{Rating: item.Feedback.Rating}
		}
		filesByID := make(map[string]transcript.MessageFile, len(item.MessageFiles))
		for _, f := range item.MessageFiles {
			file := transcript.MessageFile{
				ID:        f.ID,
				Type:      f.Type,
				URL:       f.URL,
				BelongsTo: f.BelongsTo,
			}
			msg.MessageFiles = append(msg.MessageFiles, file)
			filesByID[f.ID] = file
		}
		for _, t := range item.AgentThoughts {
			thought := transcript.AgentThought{
				ID:       t.ID,
				Thought:  t.Thought,
				Position: t.Position,
			}
			for _, fileID := range t.Files {
				if file, ok := filesByID[fileID]; ok {
					thought.Files = append(thought.Files, file)
				}
			}
			msg.AgentThoughts = append(msg.AgentThoughts, thought)
		}
		sort.SliceStable(msg.AgentThoughts, func(i, j int) bool {
			return msg.AgentThoughts[i].Position < msg.AgentThoughts[j].Position
		})
		messages = append(messages, msg)
	}
	return messages, nil
}

// GenerateConversationName asks the backend to derive a display name
// for a conversation once enough history exists.
func (c *Client) GenerateConversationName(ctx context.Context, conversationID string) (string, error) {
	body := map[string]any{"auto_generate": true, "user": c.user}
	var wire struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/conversations/%s/name", conversationID)
	if err := c.postJSON(ctx, path, body, &wire); err != nil {
		return "", fmt.Errorf("generating conversation name: %w", err)
	}
	return wire.Name, nil
}

// SubmitFeedback records a rating on a finalized message. Independent
// of the streaming protocol.
func (c *Client) SubmitFeedback(ctx context.Context, messageID, rating string) error {
	body := map[string]any{"rating": rating, "user": c.user}
	path := fmt.Sprintf("/messages/%s/feedbacks", messageID)
	if err := c.postJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("submitting feedback: %w", err)
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("user", c.user)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSON performs an authenticated POST with a JSON body. out may be
// nil when the response body is not consumed.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// inputsFromWire converts the backend's loose inputs map into typed
// values. Scalars become text values; file shapes are recognized by
// their transfer_method field.
func inputsFromWire(raw map[string]any) convo.Inputs {
	if len(raw) == 0 {
		return nil
	}
	inputs := make(convo.Inputs, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			inputs[key] = convo.Value{Kind: convo.ValueText, Text: v}
		case map[string]any:
			inputs[key] = convo.Value{Kind: convo.ValueFile, File: fileRefFromWire(v)}
		case []any:
			files := make([]convo.FileRef, 0, len(v))
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					files = append(files, *fileRefFromWire(m))
				}
			}
			inputs[key] = convo.Value{Kind: convo.ValueFileList, Files: files}
		default:
			inputs[key] = convo.Value{Kind: convo.ValueText, Text: fmt.Sprintf("%v", v)}
		}
	}
	return inputs
}

func fileRefFromWire(m map[string]any) *convo.FileRef {
	ref := &convo.FileRef{}
	if v, ok := m["type"].(string); ok {
		ref.Type = v
	}
	if v, ok := m["transfer_method"].(string); ok {
		ref.TransferMethod = v
	}
	if v, ok := m["url"].(string); ok {
		ref.URL = v
	}
	if v, ok := m["upload_file_id"].(string); ok {
		ref.UploadFileID = v
	}
	return ref
}
