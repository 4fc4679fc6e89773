package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// conversationStore implements driven.ConversationStore and driven.FeedbackStore.
type conversationStore struct {
	store *Store
}

var (
	_ driven.ConversationStore = (*conversationStore)(nil)
	_ driven.FeedbackStore     = (*conversationStore)(nil)
)

const (
	conversationColumns = `id, guest_id, ip_address, title, started_at, ended_at`
	messageColumns      = `m.id, m.conversation_id, m.role, m.content, m.citations, m.metadata, m.created_at`
)

// CreateConversation inserts a new conversation.
func (s *conversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	var endedAt any
	if conv.EndedAt != nil {
		endedAt = toMillis(*conv.EndedAt)
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.GuestID, nullString(conv.IPAddress), conv.Title,
		conv.StartedAt.UnixMilli(), endedAt)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation owned by guestID.
func (s *conversationStore) GetConversation(ctx context.Context, id, guestID string) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE id = ? AND guest_id = ?
	`, id, guestID)
	return scanConversation(row)
}

// ListConversations returns the guest's conversations, newest first.
func (s *conversationStore) ListConversations(ctx context.Context, guestID string) ([]domain.Conversation, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE guest_id = ?
		ORDER BY started_at DESC, rowid DESC
	`, guestID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation //nolint:prealloc // size unknown from query
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// EndConversation stamps ended_at.
func (s *conversationStore) EndConversation(ctx context.Context, id, guestID string, at time.Time) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE conversations SET ended_at = ?
		WHERE id = ? AND guest_id = ?
	`, at.UnixMilli(), id, guestID)
	if err != nil {
		return fmt.Errorf("ending conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTitle replaces the conversation title.
func (s *conversationStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("setting title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteConversation removes feedback, messages and the conversation.
func (s *conversationStore) DeleteConversation(ctx context.Context, id, guestID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM conversations WHERE id = ? AND guest_id = ?", id, guestID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking conversation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM feedback WHERE message_id IN
				(SELECT id FROM messages WHERE conversation_id = ?)
		`, id); err != nil {
			return fmt.Errorf("deleting feedback: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conversations WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		return nil
	})
}

// AddMessage appends a message.
func (s *conversationStore) AddMessage(ctx context.Context, msg *domain.Message) error {
	citations, err := marshalJSON(msg.Citations)
	if err != nil {
		return fmt.Errorf("marshalling citations: %w", err)
	}
	metadata, err := marshalJSON(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, citations, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, citations, metadata,
		msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("adding message: %w", err)
	}
	return nil
}

// ListMessages returns all messages of a conversation in order.
func (s *conversationStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.seq
	`, conversationID)
}

// RecentMessages returns the last n messages in chronological order.
func (s *conversationStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.seq DESC
		LIMIT ?
	`, conversationID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetOwnedMessage returns a message whose conversation belongs to guestID.
func (s *conversationStore) GetOwnedMessage(ctx context.Context, messageID, guestID string) (*domain.Message, error) {
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.id = ? AND c.guest_id = ?
	`, messageID, guestID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &msgs[0], nil
}

// SaveFeedback stores feedback on a message.
func (s *conversationStore) SaveFeedback(ctx context.Context, fb *domain.Feedback) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO feedback (id, message_id, guest_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, fb.ID, fb.MessageID, fb.GuestID, fb.Content, fb.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}
	return nil
}

func (s *conversationStore) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var citations, metadata sql.NullString
		var createdAt sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&citations, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = fromMillis(createdAt)
		if citations.Valid {
			msg.Citations = &domain.CitationSet{}
			if err := unmarshalJSON(citations, msg.Citations); err != nil {
				return nil, fmt.Errorf("unmarshaling citations: %w", err)
			}
		}
		if err := unmarshalJSON(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var ip sql.NullString
	var startedAt, endedAt sql.NullInt64

	if err := row.Scan(&conv.ID, &conv.GuestID, &ip, &conv.Title, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.IPAddress = ip.String
	conv.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt)
		conv.EndedAt = &t
	}
	return &conv, nil
}

// violationStore implements driven.ViolationStore.
type violationStore struct {
	store *Store
}

var _ driven.ViolationStore = (*violationStore)(nil)

// RecordViolation appends a violation.
func (s *violationStore) RecordViolation(ctx context.Context, v *domain.OfftopicViolation) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO offtopic_violations (id, guest_id, question, created_at)
		VALUES (?, ?, ?, ?)
	`, v.ID, v.GuestID, v.Question, v.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording violation: %w", err)
	}
	return nil
}

// CountViolationsSince counts a guest's violations at or after since.
func (s *violationStore) CountViolationsSince(ctx context.Context, guestID string, since time.Time) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM offtopic_violations
		WHERE guest_id = ? AND created_at >= ?
	`, guestID, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting violations: %w", err)
	}
	return n, nil
}

// PurgeViolationsBefore deletes violations older than before.
func (s *violationStore) PurgeViolationsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM offtopic_violations WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging violations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged violations: %w", err)
	}
	return int(n), nil
}
