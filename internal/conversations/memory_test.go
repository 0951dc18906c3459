package conversations

import (
	"context"
	"strings"
	"testing"

	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/pkg/models"
)

func newTestStore(budget int) *MemoryStore {
	return NewMemoryStore(tokens.NewEstimator(), budget)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)

	conv, err := store.Create(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected conversation id to be assigned")
	}
	if !conv.CreatedAt.Equal(conv.UpdatedAt) {
		t.Fatal("expected created_at == updated_at on a fresh conversation")
	}

	loaded, err := store.Get(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.UserID != "user-1" {
		t.Fatalf("expected owner user-1, got %q", loaded.UserID)
	}

	if err := store.Delete(ctx, conv.ID, "user-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, conv.ID, "user-1"); err != ErrNotFound {
		t.Fatalf("Get() after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUserIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)

	conv, err := store.Create(ctx, "owner", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := store.Get(ctx, conv.ID, "intruder"); err != ErrNotFound {
		t.Fatalf("Get() by non-owner = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, conv.ID, "intruder"); err != ErrNotFound {
		t.Fatalf("Delete() by non-owner = %v, want ErrNotFound", err)
	}

	// GetOrCreate for another user must never return the owner's thread.
	other, err := store.GetOrCreate(ctx, conv.ID, "intruder")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if other.ID == conv.ID {
		t.Fatal("GetOrCreate leaked another user's conversation")
	}
}

func TestMemoryStoreAppendRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)
	conv, _ := store.Create(ctx, "user-1", "")

	call := models.ToolCall{
		ID:   "call_1",
		Type: "function",
		Function: models.FunctionCall{
			Name:      "list_trips",
			Arguments: "{}",
		},
	}
	if _, err := store.Append(ctx, conv.ID, &models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := store.Append(ctx, conv.ID, &models.Message{
		Role:       models.RoleTool,
		Content:    `{"trips":[],"count":0}`,
		ToolCallID: "call_1",
		Name:       "list_trips",
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	msgs, err := store.Messages(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "list_trips" {
		t.Fatalf("tool call did not round-trip: %+v", msgs[0].ToolCalls)
	}
	if msgs[1].ToolCallID != "call_1" || msgs[1].Name != "list_trips" {
		t.Fatalf("tool message links did not round-trip: %+v", msgs[1])
	}
}

func TestMemoryStoreUpdatedAtTracksAppends(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)
	conv, _ := store.Create(ctx, "user-1", "")

	appended, err := store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	reloaded, _ := store.Get(ctx, conv.ID, "user-1")
	if !reloaded.UpdatedAt.Equal(appended.CreatedAt) {
		t.Fatalf("updated_at %v != newest created_at %v", reloaded.UpdatedAt, appended.CreatedAt)
	}
}

func TestMemoryStoreOrderingMonotone(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)
	conv, _ := store.Create(ctx, "user-1", "")

	for i := 0; i < 20; i++ {
		if _, err := store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "m"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	msgs, _ := store.Messages(ctx, conv.ID, 0)
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("created_at not monotone at index %d", i)
		}
	}
}

func TestMemoryStorePruneOldest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)
	conv, _ := store.Create(ctx, "user-1", "")

	for i := 0; i < 10; i++ {
		store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: strings.Repeat("x", i+1)})
	}

	removed, err := store.PruneOldest(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("PruneOldest() error = %v", err)
	}
	if removed != 7 {
		t.Fatalf("removed = %d, want 7", removed)
	}
	msgs, _ := store.Messages(ctx, conv.ID, 0)
	if len(msgs) != 3 {
		t.Fatalf("kept %d messages, want 3", len(msgs))
	}
	// The newest survive.
	if msgs[2].Content != strings.Repeat("x", 10) {
		t.Fatalf("wrong messages survived pruning: %q", msgs[2].Content)
	}

	reloaded, _ := store.Get(ctx, conv.ID, "user-1")
	if !reloaded.UpdatedAt.Equal(msgs[2].CreatedAt) {
		t.Fatal("updated_at should equal latest remaining created_at after prune")
	}

	// keep=0 deletes everything.
	removed, _ = store.PruneOldest(ctx, conv.ID, 0)
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}

func TestMemoryStoreContextWindowSuffix(t *testing.T) {
	ctx := context.Background()
	est := tokens.NewEstimator()
	store := NewMemoryStore(est, 60)
	conv, _ := store.Create(ctx, "user-1", "")

	for i := 0; i < 8; i++ {
		store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: strings.Repeat("hawaii flights ", 5)})
	}

	window, err := store.MessagesForContext(ctx, conv.ID, "system prompt")
	if err != nil {
		t.Fatalf("MessagesForContext() error = %v", err)
	}
	if len(window) == 0 {
		t.Fatal("window must include at least the newest message")
	}
	if len(window) == 8 {
		t.Fatal("expected the budget to exclude some history")
	}

	// Suffix property: the window is the tail of the full log.
	all, _ := store.Messages(ctx, conv.ID, 0)
	offset := len(all) - len(window)
	for i := range window {
		if window[i].ID != all[offset+i].ID {
			t.Fatalf("window is not a suffix of the log at index %d", i)
		}
	}
}

func TestMemoryStoreContextWindowZeroBudget(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(0)
	conv, _ := store.Create(ctx, "user-1", "")
	store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "oldest"})
	store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "newest"})

	window, err := store.MessagesForContext(ctx, conv.ID, "")
	if err != nil {
		t.Fatalf("MessagesForContext() error = %v", err)
	}
	if len(window) != 1 || window[0].Content != "newest" {
		t.Fatalf("zero budget should return exactly the newest message, got %d", len(window))
	}
}

func TestMessagesForContextDropsSplitToolRound(t *testing.T) {
	ctx := context.Background()
	est := tokens.NewEstimator()

	assistant := &models.Message{
		Role:    models.RoleAssistant,
		Content: strings.Repeat("comparing fares ", 30),
		ToolCalls: []models.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: models.FunctionCall{Name: "list_trips", Arguments: "{}"},
		}},
	}
	toolMsg := &models.Message{
		Role:       models.RoleTool,
		Content:    `{"trips":[],"count":0}`,
		ToolCallID: "call_1",
		Name:       "list_trips",
	}
	followUp := &models.Message{Role: models.RoleUser, Content: "and hotels?"}

	// The budget admits the tool result and the follow-up but not the
	// assistant message carrying call_1, so the cut lands inside the
	// tool round.
	budget := est.CountMessages(nil) +
		est.CountMessage(countable(toolMsg)) +
		est.CountMessage(countable(followUp)) + 1
	store := NewMemoryStore(est, budget)

	conv, _ := store.Create(ctx, "user-1", "")
	for _, msg := range []*models.Message{
		{Role: models.RoleUser, Content: "what am I tracking?"},
		assistant, toolMsg, followUp,
	} {
		if _, err := store.Append(ctx, conv.ID, msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	window, err := store.MessagesForContext(ctx, conv.ID, "")
	if err != nil {
		t.Fatalf("MessagesForContext() error = %v", err)
	}
	for _, msg := range window {
		if msg.Role == models.RoleTool {
			t.Fatalf("window carries tool message %q without its assistant call", msg.ToolCallID)
		}
	}
	if len(window) != 1 || window[0].Role != models.RoleUser || window[0].Content != "and hotels?" {
		t.Fatalf("window = %d messages, want just the follow-up", len(window))
	}
}

func TestMemoryStoreEnforceLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)

	var first *models.Conversation
	for i := 0; i < 5; i++ {
		conv, _ := store.Create(ctx, "user-1", "")
		if i == 0 {
			first = conv
		}
	}

	removed, err := store.EnforceLimit(ctx, "user-1", 5)
	if err != nil {
		t.Fatalf("EnforceLimit() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, first.ID, "user-1"); err != ErrNotFound {
		t.Fatal("oldest conversation should have been evicted")
	}

	// After enforcement plus one create the user stays within the cap.
	store.Create(ctx, "user-1", "")
	count, _ := store.Count(ctx, "user-1")
	if count > 5 {
		t.Fatalf("count = %d, want <= 5", count)
	}

	// Under the limit nothing is removed.
	removed, _ = store.EnforceLimit(ctx, "user-1", 20)
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestMemoryStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)

	a, _ := store.Create(ctx, "user-1", "first")
	b, _ := store.Create(ctx, "user-1", "second")
	store.Append(ctx, a.ID, &models.Message{Role: models.RoleUser, Content: "bump"})

	list, err := store.List(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatal("expected most recently updated conversation first")
	}
}

func TestMemoryStoreAppendTurnAtomicity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(8000)
	conv, _ := store.Create(ctx, "user-1", "")
	store.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "hi"})

	turn := []*models.Message{
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{{ID: "c1", Type: "function", Function: models.FunctionCall{Name: "list_trips", Arguments: "{}"}}}},
		{Role: models.RoleTool, Content: "{}", ToolCallID: "c1", Name: "list_trips"},
		{Role: models.RoleAssistant, Content: "done"},
	}
	if err := store.AppendTurn(ctx, conv.ID, turn, 100); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	msgs, _ := store.Messages(ctx, conv.ID, 0)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	if err := store.AppendTurn(ctx, "missing", turn, 100); err != ErrNotFound {
		t.Fatalf("AppendTurn() on missing conversation = %v, want ErrNotFound", err)
	}
}
