// ABOUTME: Conversation store tracking known conversations and the current selection
// ABOUTME: Owns the sentinel (not-yet-persisted) conversation lifecycle and cached inputs

package convo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SentinelID is the reserved id of a conversation created locally but
// not yet persisted by the backend. It is distinguished from all real
// ids and never reused.
const SentinelID = "-1"

// ErrConversationNotFound is returned when selecting an unknown id.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrNoSentinel is returned when promoting while no sentinel exists.
var ErrNoSentinel = errors.New("no sentinel conversation")

// Value kinds for user input variables.
const (
	ValueText     = "text"
	ValueFile     = "file"
	ValueFileList = "file_list"
)

// FileRef is the backend's file-reference shape for file-bearing
// input variables and message attachments.
type FileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// Value is one user input variable: a scalar, a file reference, or a
// list of file references.
type Value struct {
	Kind  string
	Text  string
	File  *FileRef
	Files []FileRef
}

// Inputs maps variable name to the value collected from the user before
// the first message of a conversation.
type Inputs map[string]Value

// Clone returns a copy safe to hold across mutations.
func (in Inputs) Clone() Inputs {
	if in == nil {
		return nil
	}
	out := make(Inputs, len(in))
	for k, v := range in {
		if v.Files != nil {
			v.Files = append([]FileRef(nil), v.Files...)
		}
		if v.File != nil {
			f := *v.File
			v.File = &f
		}
		out[k] = v
	}
	return out
}

// Conversation is one known conversation, newest conversations first in
// the store's list.
type Conversation struct {
	ID                 string
	Name               string
	Introduction       string
	SuggestedQuestions []string
	Inputs             Inputs
	CreatedAt          time.Time
}

// LastOpenStore persists which conversation was last open, keyed by
// application identity. Durable storage is an external collaborator;
// the store only calls these hooks.
type LastOpenStore interface {
	GetLastOpen(ctx context.Context, appID string) (string, error)
	SetLastOpen(ctx context.Context, appID, conversationID string) error
}

// Store holds the set of known conversations, which one is current, and
// the cached inputs for the not-yet-created sentinel conversation.
type Store struct {
	mu             sync.RWMutex
	appID          string
	conversations  []*Conversation
	currentID      string
	generation     uint64
	sentinelName   string
	sentinelIntro  string
	sentinelSugg   []string
	sentinelInputs Inputs
	lastOpen       LastOpenStore
	logger         *slog.Logger
}

// NewStore creates a conversation store. lastOpen may be nil, in which
// case selection is not persisted.
func NewStore(appID string, lastOpen LastOpenStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		appID:        appID,
		sentinelName: "New conversation",
		lastOpen:     lastOpen,
		logger:       logger.With("component", "convo"),
	}
}

// SetNewConversationInfo records the display name, introduction and
// suggested questions used for conversations that do not exist on the
// backend yet.
func (s *Store) SetNewConversationInfo(name, introduction string, suggested []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.sentinelName = name
	}
	s.sentinelIntro = introduction
	s.sentinelSugg = append([]string(nil), suggested...)
}

// Load replaces the known conversation set (newest first, as fetched
// from the backend) and restores the last-open selection from durable
// storage. When the stored id no longer exists the selection falls back
// to the sentinel.
func (s *Store) Load(ctx context.Context, conversations []*Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = conversations

	var lastID string
	if s.lastOpen != nil {
		id, err := s.lastOpen.GetLastOpen(ctx, s.appID)
		if err != nil {
			s.logger.Warn("failed to read last-open conversation", "error", err)
		} else {
			lastID = id
		}
	}
	if lastID != "" && s.findLocked(lastID) != nil {
		s.currentID = lastID
		s.logger.Debug("restored last-open conversation", "conversation_id", lastID)
		return
	}
	s.currentID = SentinelID
}

// List returns the known set, newest first. At most one sentinel
// conversation appears, always at the head.
func (s *Store) List() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// CurrentID returns the currently selected conversation id.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Current returns the currently selected conversation, or nil when the
// current id is the sentinel and no sentinel entry exists in the list.
func (s *Store) Current() *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.currentID)
}

// IsNewConversation reports whether the current selection is the
// sentinel (not yet created on the backend).
func (s *Store) IsNewConversation() bool {
	return s.CurrentID() == SentinelID
}

// Generation returns the current selection generation. Every Select
// bumps it; an in-flight send captures the generation valid at its
// start and suppresses transcript mutations once it no longer matches.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Select switches the current conversation. Selecting the sentinel id
// reuses an existing sentinel rather than creating a duplicate. The
// selection is persisted through the LastOpenStore hook.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	if id != SentinelID && s.findLocked(id) == nil {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	s.currentID = id
	s.generation++
	s.mu.Unlock()

	if s.lastOpen != nil && id != SentinelID {
		if err := s.lastOpen.SetLastOpen(ctx, s.appID, id); err != nil {
			s.logger.Warn("failed to persist last-open conversation",
				"conversation_id", id,
				"error", err)
		}
	}
	return nil
}

// StartNew inserts a sentinel conversation at the head of the list,
// seeded with the given input values. A no-op (returning the existing
// sentinel) if one already exists.
func (s *Store) StartNew(inputs Inputs) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findLocked(SentinelID); existing != nil {
		return existing
	}
	s.sentinelInputs = inputs.Clone()
	conv := &Conversation{
		ID:                 SentinelID,
		Name:               s.sentinelName,
		Introduction:       s.sentinelIntro,
		SuggestedQuestions: append([]string(nil), s.sentinelSugg...),
		Inputs:             inputs.Clone(),
		CreatedAt:          time.Now(),
	}
	s.conversations = append([]*Conversation{conv}, s.conversations...)
	s.logger.Debug("sentinel conversation created")
	return conv
}

// PromoteSentinel rewrites the sentinel's id in place once the backend
// confirms the new conversation's identity, without reordering the
// list. The display name is updated when non-empty.
func (s *Store) PromoteSentinel(newID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(SentinelID)
	if conv == nil {
		return ErrNoSentinel
	}
	conv.ID = newID
	if name != "" {
		conv.Name = name
	}
	if s.currentID == SentinelID {
		s.currentID = newID
	}
	s.logger.Debug("sentinel promoted", "conversation_id", newID, "name", name)
	return nil
}

// SentinelInputs returns the cached inputs for the next new chat.
func (s *Store) SentinelInputs() Inputs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sentinelInputs.Clone()
}

// SetSentinelInputs caches input values for the sentinel conversation.
func (s *Store) SetSentinelInputs(inputs Inputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentinelInputs = inputs.Clone()
	if conv := s.findLocked(SentinelID); conv != nil {
		conv.Inputs = inputs.Clone()
	}
}

// ClearSentinelInputs resets the cached sentinel inputs so the next
// new-chat start is clean. Called after promotion.
func (s *Store) ClearSentinelInputs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentinelInputs = nil
}

// InputsFor returns the cached inputs of the given conversation: the
// sentinel cache for the sentinel id, the conversation's own inputs
// otherwise.
func (s *Store) InputsFor(id string) Inputs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == SentinelID {
		return s.sentinelInputs.Clone()
	}
	if conv := s.findLocked(id); conv != nil {
		return conv.Inputs.Clone()
	}
	return nil
}

// Find returns the conversation with the given id, or nil.
func (s *Store) Find(id string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

func (s *Store) findLocked(id string) *Conversation {
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}
