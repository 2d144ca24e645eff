// Package chatstore persists conversation transcripts and tool execution
// records to SQLite. Writes retry on transient lock contention so a busy
// database does not drop history.
package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

// ToolExecution is one recorded tool call, stored for audit and debugging.
type ToolExecution struct {
	ConversationID string
	CallID         string
	Name           string
	Arguments      string
	Result         string
	Error          string
	CreatedAt      time.Time
}

// Store handles persistence of conversation messages and tool executions.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "chatstore").Logger(),
	}
}

// AppendMessage saves one message to the conversation transcript. Tool result
// messages insert idempotently keyed on (conversation_id, tool_call_id, role)
// so a crash between execution and reply does not duplicate rows on replay.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg llm.Message) error {
	toolCalls, err := encodeToolCalls(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}

	now := time.Now().Unix()
	query := sq.Insert("messages").
		Columns("conversation_id", "role", "content", "tool_call_id", "tool_name", "tool_calls", "created_at").
		Values(conversationID, string(msg.Role), msg.Content, nullable(msg.ToolCallID), nullable(msg.Name), nullable(toolCalls), now)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	// SQLite requires "OR IGNORE" to come after "INSERT", so we replace "INSERT INTO" with "INSERT OR IGNORE INTO"
	if msg.ToolCallID != "" {
		queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	}

	return s.execWithRetry(ctx, queryStr, args)
}

// LoadTranscript returns the full message history for a conversation in
// insertion order.
func (s *Store) LoadTranscript(ctx context.Context, conversationID string) ([]llm.Message, error) {
	query := sq.Select("role", "content", "tool_call_id", "tool_name", "tool_calls").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var (
			role, content                  string
			toolCallID, toolName, rawCalls sql.NullString
		)
		if err := rows.Scan(&role, &content, &toolCallID, &toolName, &rawCalls); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg := llm.Message{
			Role:       llm.MessageRole(role),
			Content:    content,
			ToolCallID: toolCallID.String,
			Name:       toolName.String,
		}
		if rawCalls.Valid && rawCalls.String != "" {
			calls, err := decodeToolCalls(rawCalls.String)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("conversationID", conversationID).
					Msg("Skipping undecodable tool calls on stored message")
			} else {
				msg.ToolCalls = calls
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// RecordToolExecution saves one tool call outcome. Rows insert idempotently
// keyed on (conversation_id, call_id).
func (s *Store) RecordToolExecution(ctx context.Context, exec ToolExecution) error {
	createdAt := exec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := sq.Insert("tool_executions").
		Columns("conversation_id", "call_id", "tool_name", "arguments", "result", "error", "created_at").
		Values(exec.ConversationID, exec.CallID, exec.Name, exec.Arguments, exec.Result, nullable(exec.Error), createdAt.Unix())

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)

	return s.execWithRetry(ctx, queryStr, args)
}

// DeleteConversation removes a conversation's transcript and tool execution
// records.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	for _, table := range []string{"messages", "tool_executions"} {
		queryStr, args, err := sq.Delete(table).
			Where(sq.Eq{"conversation_id": conversationID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if err := s.execWithRetry(ctx, queryStr, args); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

// execWithRetry runs a write statement, retrying briefly when SQLite reports
// lock contention from a concurrent writer.
func (s *Store) execWithRetry(ctx context.Context, queryStr string, args []any) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 1 * time.Second
	b := backoff.WithMaxRetries(eb, 5)

	operation := func() error {
		_, err := s.db.ExecContext(ctx, queryStr, args...)
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			s.logger.Debug().Err(err).Msg("Database busy, retrying write")
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeToolCalls(calls []llm.ToolCall) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeToolCalls(raw string) ([]llm.ToolCall, error) {
	var calls []llm.ToolCall
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		return nil, err
	}
	return calls, nil
}
