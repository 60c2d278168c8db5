// Package store persists chat conversations. The whole collection lives in
// one JSON array file; every save rewrites the file completely.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"vault-assistant/llm"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// Caps for the derived conversation name: at most nameWordLimit words and
// nameCharLimit characters, with an ellipsis when anything was cut.
const (
	nameWordLimit = 6
	nameCharLimit = 20
)

// Conversation is one persisted chat transcript.
type Conversation struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	WordCount int           `json:"wordCount"`
}

// Metadata is the listing view of one conversation.
type Metadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	WordCount    int       `json:"wordCount"`
}

// Store reads and writes the conversation collection file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store persisting to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists a conversation. With an empty existingID a new entry is
// appended; with a known id that entry is replaced in place; an unknown id
// is an error. Returns the conversation id.
func (s *Store) Save(messages []llm.Message, existingID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.loadAll()
	if err != nil {
		return "", err
	}

	now := time.Now()
	name := GenerateConversationName(messages)
	words := countWords(messages)

	if existingID != "" {
		for i := range conversations {
			if conversations[i].ID == existingID {
				conversations[i].Messages = messages
				conversations[i].Name = name
				conversations[i].WordCount = words
				conversations[i].UpdatedAt = now
				if err := s.persist(conversations); err != nil {
					return "", err
				}
				return existingID, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, existingID)
	}

	conv := Conversation{
		ID:        newConversationID(),
		Name:      name,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
		WordCount: words,
	}
	conversations = append(conversations, conv)
	if err := s.persist(conversations); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Load returns a conversation by id, or nil if it does not exist. Absence
// is not an error on read.
func (s *Store) Load(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		if conversations[i].ID == id {
			conv := conversations[i]
			return &conv, nil
		}
	}
	return nil, nil
}

// Delete removes a conversation by id. An unknown id is an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.loadAll()
	if err != nil {
		return err
	}

	kept := conversations[:0]
	for _, conv := range conversations {
		if conv.ID != id {
			kept = append(kept, conv)
		}
	}
	if len(kept) == len(conversations) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.persist(kept)
}

// ListMetadata returns listing entries for every conversation, most
// recently updated first.
func (s *Store) ListMetadata() ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	metas := make([]Metadata, 0, len(conversations))
	for _, conv := range conversations {
		metas = append(metas, Metadata{
			ID:           conv.ID,
			Name:         conv.Name,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			WordCount:    conv.WordCount,
		})
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// ClearAll persists an empty collection.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist([]Conversation{})
}

// loadAll reads the collection file. A missing file means no conversations
// yet, not an error.
func (s *Store) loadAll() ([]Conversation, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations file: %w", err)
	}

	var conversations []Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("failed to parse conversations file: %w", err)
	}
	return conversations, nil
}

func (s *Store) persist(conversations []Conversation) error {
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create conversations directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversations file: %w", err)
	}
	return nil
}

// GenerateConversationName derives a display name from the first user
// message: its first few words, ellipsis-suffixed when truncated. Without
// any user message a date-stamped placeholder is used.
func GenerateConversationName(messages []llm.Message) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		words := strings.Fields(msg.Content)
		if len(words) == 0 {
			break
		}
		truncated := len(words) > nameWordLimit
		if truncated {
			words = words[:nameWordLimit]
		}
		name := strings.Join(words, " ")
		if len(name) > nameCharLimit {
			name = strings.TrimSpace(name[:nameCharLimit])
			truncated = true
		}
		if truncated {
			name += "..."
		}
		return name
	}
	return "Conversation " + time.Now().Format("2006-01-02 15:04")
}

// countWords sums the whitespace-split token count over all messages.
func countWords(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(strings.Fields(msg.Content))
	}
	return total
}

// newConversationID builds an opaque id from the current timestamp and a
// random suffix.
func newConversationID() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
