package core

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyRole is returned when appending a message without a role.
var ErrEmptyRole = errors.New("empty role")

// DefaultMaxMessages bounds the live message window when no explicit
// limit is configured.
const DefaultMaxMessages = 20

// Store manages conversation history keyed by an opaque identity
// (a channel ID, user ID, thread key, or similar). Implementations must
// serialize mutation per identity; operations on distinct identities are
// independent.
type Store interface {
	// Append adds a message to the end of the identity's sequence.
	Append(ctx context.Context, identity string, msg Message) error

	// Messages returns the identity's live message sequence.
	Messages(ctx context.Context, identity string) ([]Message, error)

	// SetMessages replaces the identity's live message sequence.
	SetMessages(ctx context.Context, identity string, msgs []Message) error

	// Context returns the request view: the system prompt, the accumulated
	// summary (as a synthetic system message, if any), and the most recent
	// MaxMessages live messages, in that order. Side-effect free.
	Context(ctx context.Context, identity, systemPrompt string) ([]Message, error)

	// Trim drops the oldest non-system messages until the live sequence is
	// within the configured bound. System messages are never evicted.
	Trim(ctx context.Context, identity string) error

	// Clear removes the identity's sequence and summary. Idempotent.
	Clear(ctx context.Context, identity string) error

	// Len returns the number of live messages for the identity.
	Len(ctx context.Context, identity string) (int, error)

	// Summary returns the accumulated summary text, or "".
	Summary(ctx context.Context, identity string) (string, error)

	// AppendSummary joins text onto the accumulated summary with a newline.
	AppendSummary(ctx context.Context, identity, text string) error

	// DropOldest removes and returns all but the newest keep messages,
	// leaving system messages in place. Used by summarization.
	DropOldest(ctx context.Context, identity string, keep int) ([]Message, error)
}

// summaryPrefix heads the synthetic system message carrying the summary.
const summaryPrefix = "Previous conversation summary:\n"

// MemoryStore is a thread-safe in-memory Store. Suitable for processes
// that don't need history to survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	max   int
	convs map[string]*memoryConversation
}

type memoryConversation struct {
	mu       sync.Mutex
	messages []Message
	summary  string
}

// NewMemoryStore creates an in-memory store bounded to maxMessages live
// messages per identity. maxMessages <= 0 selects DefaultMaxMessages.
func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &MemoryStore{
		max:   maxMessages,
		convs: make(map[string]*memoryConversation),
	}
}

// conv returns the per-identity state, creating it when create is set.
func (s *MemoryStore) conv(identity string, create bool) *memoryConversation {
	s.mu.RLock()
	c := s.convs[identity]
	s.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.convs[identity]; c == nil {
		c = &memoryConversation{}
		s.convs[identity] = c
	}
	return c
}

// Append adds a message to the end of the identity's sequence.
func (s *MemoryStore) Append(_ context.Context, identity string, msg Message) error {
	if msg.Role == "" {
		return ErrEmptyRole
	}
	c := s.conv(identity, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Messages returns a copy of the identity's live sequence.
func (s *MemoryStore) Messages(_ context.Context, identity string) ([]Message, error) {
	c := s.conv(identity, false)
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

// SetMessages replaces the identity's live sequence.
func (s *MemoryStore) SetMessages(_ context.Context, identity string, msgs []Message) error {
	c := s.conv(identity, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]Message, len(msgs))
	copy(c.messages, msgs)
	return nil
}

// Context returns the request view for the identity.
func (s *MemoryStore) Context(_ context.Context, identity, systemPrompt string) ([]Message, error) {
	var view []Message
	if systemPrompt != "" {
		view = append(view, Message{Role: RoleSystem, Content: systemPrompt})
	}

	c := s.conv(identity, false)
	if c == nil {
		return view, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.summary != "" {
		view = append(view, Message{Role: RoleSystem, Content: summaryPrefix + c.summary})
	}

	live := c.messages
	if len(live) > s.max {
		live = live[len(live)-s.max:]
	}
	view = append(view, live...)
	return view, nil
}

// Trim drops oldest non-system messages until at or under the bound.
func (s *MemoryStore) Trim(_ context.Context, identity string) error {
	c := s.conv(identity, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = trimMessages(c.messages, s.max)
	return nil
}

// Clear removes the identity's sequence and summary.
func (s *MemoryStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, identity)
	return nil
}

// Len returns the number of live messages for the identity.
func (s *MemoryStore) Len(_ context.Context, identity string) (int, error) {
	c := s.conv(identity, false)
	if c == nil {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages), nil
}

// Summary returns the accumulated summary text.
func (s *MemoryStore) Summary(_ context.Context, identity string) (string, error) {
	c := s.conv(identity, false)
	if c == nil {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, nil
}

// AppendSummary joins text onto the accumulated summary.
func (s *MemoryStore) AppendSummary(_ context.Context, identity, text string) error {
	if text == "" {
		return nil
	}
	c := s.conv(identity, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == "" {
		c.summary = text
	} else {
		c.summary += "\n" + text
	}
	return nil
}

// DropOldest removes and returns all but the newest keep messages,
// leaving system messages in place.
func (s *MemoryStore) DropOldest(_ context.Context, identity string, keep int) ([]Message, error) {
	c := s.conv(identity, false)
	if c == nil || keep < 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) <= keep {
		return nil, nil
	}

	boundary := len(c.messages) - keep
	var removed, kept []Message
	for i, msg := range c.messages {
		if i < boundary && msg.Role != RoleSystem {
			removed = append(removed, msg)
		} else {
			kept = append(kept, msg)
		}
	}
	c.messages = kept
	return removed, nil
}

// trimMessages removes oldest non-system entries until len(msgs) <= max,
// preserving the relative order of survivors.
func trimMessages(msgs []Message, max int) []Message {
	for len(msgs) > max {
		idx := -1
		for i, m := range msgs {
			if m.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break // nothing evictable
		}
		msgs = append(msgs[:idx], msgs[idx+1:]...)
	}
	return msgs
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
