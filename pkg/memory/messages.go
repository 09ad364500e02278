package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dotsetgreg/rumi/pkg/logger"
)

const defaultUserMessageLimit = 100

func (in MessageInput) activity(at time.Time) Activity {
	return Activity{
		GuildID:     in.GuildID,
		GuildName:   in.GuildName,
		ChannelID:   in.ChannelID,
		ChannelName: in.ChannelName,
		UserID:      in.UserID,
		Username:    in.Username,
		DisplayName: in.DisplayName,
		At:          at,
	}
}

// StoreMessage persists one message. In a single transaction it registers
// the guild, channel and user, appends the ledger row, and mirrors it into
// the author's partition. It returns the new ledger id.
func (s *SQLiteStore) StoreMessage(ctx context.Context, in MessageInput) (int64, error) {
	if err := in.activity(time.Time{}).validate(); err != nil {
		return 0, fmt.Errorf("store message: %w", err)
	}
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		kind = KindUser
	}
	at := in.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	atMS := toMS(at)
	words := WordCount(in.Content)

	var id int64
	err := s.withWrite(ctx, "store message", func(ctx context.Context, tx *sql.Tx) error {
		if err := registerActivityTx(ctx, tx, in.activity(at), true); err != nil {
			return err
		}

		reply, err := resolveReplyTx(ctx, tx, in.ReplyToID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO messages(user_id, guild_id, channel_id, content, timestamp_ms, message_type, reply_to_id, word_count)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`, in.UserID, in.GuildID, in.ChannelID, in.Content, atMS, kind, reply, words)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}

		table, err := ensurePartitionTx(ctx, tx, in.UserID, atMS)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s(message_id, guild_id, channel_id, content, timestamp_ms, word_count, reply_to_id)
VALUES(?, ?, ?, ?, ?, ?, ?)`, quoteIdent(table)), id, in.GuildID, in.ChannelID, in.Content, atMS, words, reply); err != nil {
			return fmt.Errorf("insert partition row: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.DebugCF("memory", "Message stored", map[string]any{
		"message_id": id,
		"guild_id":   in.GuildID,
		"channel_id": in.ChannelID,
		"user_id":    in.UserID,
		"words":      words,
	})
	return id, nil
}

// resolveReplyTx returns the reply reference to store, NULL when absent or
// when the referenced message is not in the ledger.
func resolveReplyTx(ctx context.Context, tx *sql.Tx, replyToID int64) (sql.NullInt64, error) {
	if replyToID <= 0 {
		return sql.NullInt64{}, nil
	}
	var found int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM messages WHERE id = ?`, replyToID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DebugCF("memory", "Reply target not in ledger, storing without reply", map[string]any{
			"reply_to_id": replyToID,
		})
		return sql.NullInt64{}, nil
	}
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("resolve reply: %w", err)
	}
	return sql.NullInt64{Int64: found, Valid: true}, nil
}

// GetUserMessages reads from the user's partition, oldest first, capped at
// the most recent q.Limit rows. A user without a partition yields an empty
// slice.
func (s *SQLiteStore) GetUserMessages(ctx context.Context, q UserMessageQuery) ([]UserMessage, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return nil, fmt.Errorf("get user messages: %w: empty user id", ErrInvalidInput)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultUserMessageLimit
	}
	since := int64(math.MinInt64)
	if !q.Since.IsZero() {
		since = toMS(q.Since)
	}

	var out []UserMessage
	err := s.withRead(ctx, "get user messages", func(ctx context.Context) error {
		out = []UserMessage{}
		table, ok, err := lookupPartition(ctx, s.db, q.UserID)
		if err != nil || !ok {
			return err
		}
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, message_id, guild_id, channel_id, content, timestamp_ms, word_count, reply_to_id
FROM %s
WHERE (? = '' OR guild_id = ?)
AND timestamp_ms > ?
ORDER BY timestamp_ms DESC, id DESC
LIMIT ?`, quoteIdent(table)), q.GuildID, q.GuildID, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m UserMessage
			var tsMS int64
			var reply sql.NullInt64
			if err := rows.Scan(&m.ID, &m.MessageID, &m.GuildID, &m.ChannelID, &m.Content, &tsMS, &m.WordCount, &reply); err != nil {
				return fmt.Errorf("scan partition row: %w", err)
			}
			m.Timestamp = fromMS(tsMS)
			m.ReplyToID = nullID(reply)
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetMessage returns one ledger row, or nil when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var out *Message
	err := s.withRead(ctx, "get message", func(ctx context.Context) error {
		out = nil
		var m Message
		var tsMS int64
		var reply, editedMS sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, guild_id, channel_id, content, timestamp_ms, message_type, reply_to_id, edited_at_ms, word_count
FROM messages WHERE id = ?`, id).Scan(&m.ID, &m.UserID, &m.GuildID, &m.ChannelID, &m.Content, &tsMS, &m.Kind, &reply, &editedMS, &m.WordCount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		m.Timestamp = fromMS(tsMS)
		m.ReplyToID = nullID(reply)
		m.EditedAt = nullMS(editedMS)
		out = &m
		return nil
	})
	return out, err
}
