package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/pkg/models"
)

// PostgresStore implements Store on a PostgreSQL database.
//
// Messages carry a bigserial seq column so ordering stays total when
// several messages share a created_at within one transaction.
type PostgresStore struct {
	db        *sql.DB
	estimator *tokens.Estimator
	budget    int
}

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sensible pool defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(cfg *PostgresConfig, estimator *tokens.Estimator, contextBudget int) (*PostgresStore, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db, estimator, contextBudget), nil
}

// NewPostgresStoreFromDB wraps an existing database handle. Used by
// tests and by callers that manage the pool themselves.
func NewPostgresStoreFromDB(db *sql.DB, estimator *tokens.Estimator, contextBudget int) *PostgresStore {
	return &PostgresStore{db: db, estimator: estimator, budget: contextBudget}
}

// Migrate creates the conversation tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			seq BIGSERIAL,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tool_calls JSONB,
			tool_call_id TEXT,
			name TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate conversations: %w", err)
		}
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, userID, title string) (*models.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.UserID, nullableString(conv.Title), conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) Get(ctx context.Context, id, userID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	return scanConversation(row)
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if id != "" {
		conv, err := s.Get(ctx, id, userID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.Create(ctx, userID, "")
}

func (s *PostgresStore) List(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []*models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = $1 WHERE id = $2`, title, id)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, conversationID string, msg *models.Message) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	appended, err := appendInTx(ctx, tx, conversationID, msg)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return appended, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, conversationID string, msgs []*models.Message, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if _, err := appendInTx(ctx, tx, conversationID, msg); err != nil {
			return err
		}
	}
	if _, err := pruneInTx(ctx, tx, conversationID, keep); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, seq ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at FROM (
			SELECT id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at, seq
			FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2
		 ) recent ORDER BY created_at ASC, seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MessagesForContext(ctx context.Context, conversationID, systemPrompt string) ([]*models.Message, error) {
	msgs, err := s.Messages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	return selectWindow(s.estimator, msgs, systemPrompt, s.budget), nil
}

func (s *PostgresStore) PruneOldest(ctx context.Context, conversationID string, keep int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	removed, err := pruneInTx(ctx, tx, conversationID, keep)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return removed, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteOldest(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations WHERE user_id = $1 ORDER BY updated_at ASC LIMIT $2
		 )`,
		userID, n,
	)
	if err != nil {
		return 0, fmt.Errorf("delete oldest: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete oldest: %w", err)
	}
	return int(removed), nil
}

func (s *PostgresStore) EnforceLimit(ctx context.Context, userID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	count, err := s.Count(ctx, userID)
	if err != nil {
		return 0, err
	}
	if count < max {
		return 0, nil
	}
	return s.DeleteOldest(ctx, userID, count-max+1)
}

func appendInTx(ctx context.Context, tx *sql.Tx, conversationID string, msg *models.Message) (*models.Message, error) {
	clone := models.CloneMessage(msg)
	clone.ConversationID = conversationID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	toolCalls, err := models.MarshalToolCalls(clone.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("encode tool calls: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		clone.ID, clone.ConversationID, string(clone.Role), clone.Content,
		nullableBytes(toolCalls), nullableString(clone.ToolCallID), nullableString(clone.Name), clone.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2 AND updated_at <= $1`,
		clone.CreatedAt, conversationID,
	); err != nil {
		return nil, fmt.Errorf("advance updated_at: %w", err)
	}
	return clone, nil
}

func pruneInTx(ctx context.Context, tx *sql.Tx, conversationID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND seq NOT IN (
			SELECT seq FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2
		 )`,
		conversationID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	if removed > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = COALESCE(
				(SELECT MAX(created_at) FROM messages WHERE conversation_id = $1), updated_at
			 ) WHERE id = $1`,
			conversationID,
		); err != nil {
			return 0, fmt.Errorf("refresh updated_at: %w", err)
		}
	}
	return int(removed), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var title sql.NullString
	err := row.Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.Title = title.String
	return &conv, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var role string
	var toolCalls []byte
	var toolCallID, name sql.NullString
	err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &toolCalls, &toolCallID, &name, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Role = models.Role(role)
	msg.ToolCallID = toolCallID.String
	msg.Name = name.String
	msg.ToolCalls, err = models.UnmarshalToolCalls(toolCalls)
	if err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	return &msg, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
