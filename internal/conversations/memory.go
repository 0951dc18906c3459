package conversations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message

	estimator *tokens.Estimator
	budget    int
}

// NewMemoryStore creates a new in-memory conversation store with the
// given context-window token budget.
func NewMemoryStore(estimator *tokens.Estimator, contextBudget int) *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
		estimator:     estimator,
		budget:        contextBudget,
	}
}

func (m *MemoryStore) Create(ctx context.Context, userID, title string) (*models.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(userID, title), nil
}

func (m *MemoryStore) createLocked(userID, title string) *models.Conversation {
	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv
	return cloneConversation(conv)
}

func (m *MemoryStore) Get(ctx context.Context, id, userID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if conv, ok := m.conversations[id]; ok && conv.UserID == userID {
			return cloneConversation(conv), nil
		}
	}
	return m.createLocked(userID, ""), nil
}

func (m *MemoryStore) List(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error) {
	limit, offset = clampPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if offset >= len(out) {
		return []*models.Conversation{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MemoryStore) SetTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Title = title
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, conversationID string, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(conversationID, msg)
}

func (m *MemoryStore) appendLocked(conversationID string, msg *models.Message) (*models.Message, error) {
	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	clone := models.CloneMessage(msg)
	clone.ConversationID = conversationID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	// created_at is monotone non-decreasing within a conversation.
	if log := m.messages[conversationID]; len(log) > 0 {
		if last := log[len(log)-1].CreatedAt; clone.CreatedAt.Before(last) {
			clone.CreatedAt = last
		}
	}
	m.messages[conversationID] = append(m.messages[conversationID], clone)
	conv.UpdatedAt = clone.CreatedAt
	return models.CloneMessage(clone), nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, conversationID string, msgs []*models.Message, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return ErrNotFound
	}
	for _, msg := range msgs {
		if _, err := m.appendLocked(conversationID, msg); err != nil {
			return err
		}
	}
	m.pruneLocked(conversationID, keep)
	return nil
}

func (m *MemoryStore) Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.messages[conversationID]
	start := 0
	if limit > 0 && len(log) > limit {
		start = len(log) - limit
	}
	out := make([]*models.Message, 0, len(log)-start)
	for _, msg := range log[start:] {
		out = append(out, models.CloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) MessagesForContext(ctx context.Context, conversationID, systemPrompt string) ([]*models.Message, error) {
	msgs, err := m.Messages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	return selectWindow(m.estimator, msgs, systemPrompt, m.budget), nil
}

func (m *MemoryStore) PruneOldest(ctx context.Context, conversationID string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return 0, ErrNotFound
	}
	return m.pruneLocked(conversationID, keep), nil
}

func (m *MemoryStore) pruneLocked(conversationID string, keep int) int {
	if keep < 0 {
		keep = 0
	}
	log := m.messages[conversationID]
	if len(log) <= keep {
		return 0
	}
	removed := len(log) - keep
	m.messages[conversationID] = append([]*models.Message{}, log[removed:]...)
	if conv, ok := m.conversations[conversationID]; ok {
		if remaining := m.messages[conversationID]; len(remaining) > 0 {
			conv.UpdatedAt = remaining[len(remaining)-1].CreatedAt
		}
	}
	return removed
}

func (m *MemoryStore) Delete(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok || conv.UserID != userID {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) Count(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) DeleteOldest(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteOldestLocked(userID, n), nil
}

func (m *MemoryStore) deleteOldestLocked(userID string, n int) int {
	var owned []*models.Conversation
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			owned = append(owned, conv)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.Before(owned[j].UpdatedAt)
	})
	if n > len(owned) {
		n = len(owned)
	}
	for _, conv := range owned[:n] {
		delete(m.conversations, conv.ID)
		delete(m.messages, conv.ID)
	}
	return n
}

func (m *MemoryStore) EnforceLimit(ctx context.Context, userID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			count++
		}
	}
	if count < max {
		return 0, nil
	}
	return m.deleteOldestLocked(userID, count-max+1), nil
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	if conv == nil {
		return nil
	}
	clone := *conv
	return &clone
}
