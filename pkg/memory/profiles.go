package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// UpsertProfile stores the latest analysis for (user, guild). The message
// count is recomputed from the ledger inside the same transaction so it
// always matches the data at write time.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, in ProfileInput) error {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.GuildID) == "" {
		return fmt.Errorf("upsert profile: %w: empty user or guild id", ErrInvalidInput)
	}
	topics := encodeTopics(in.Topics)

	return s.withWrite(ctx, "upsert profile", func(ctx context.Context, tx *sql.Tx) error {
		now := toMS(s.now())

		var known int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, in.UserID).Scan(&known)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown user %q", ErrIntegrity, in.UserID)
		}
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if err := ensureGuildTx(ctx, tx, in.GuildID, "", now); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM messages WHERE user_id = ? AND guild_id = ?`, in.UserID, in.GuildID).Scan(&count); err != nil {
			return fmt.Errorf("count user messages: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_profiles(user_id, guild_id, personality_notes, common_topics, interaction_style, message_count, analysis_date_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, guild_id) DO UPDATE SET
	personality_notes = excluded.personality_notes,
	common_topics = excluded.common_topics,
	interaction_style = excluded.interaction_style,
	message_count = excluded.message_count,
	analysis_date_ms = excluded.analysis_date_ms`,
			in.UserID, in.GuildID, in.Notes, topics, in.Style, count, now); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		return nil
	})
}

// GetProfile returns the user with their analysis for the guild, or nil when
// the user has never been seen.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID, guildID string) (*Profile, error) {
	var out *Profile
	err := s.withRead(ctx, "get profile", func(ctx context.Context) error {
		out = nil
		var p Profile
		var lastSeenMS int64
		var notes, topics, style sql.NullString
		var count, analysisMS sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
SELECT u.user_id, u.username, u.display_name, u.total_messages, u.last_seen_ms,
	p.personality_notes, p.common_topics, p.interaction_style, p.message_count, p.analysis_date_ms
FROM users u
LEFT JOIN user_profiles p ON p.user_id = u.user_id AND p.guild_id = ?
WHERE u.user_id = ?`, guildID, userID).Scan(
			&p.UserID, &p.Username, &p.DisplayName, &p.TotalMessages, &lastSeenMS,
			&notes, &topics, &style, &count, &analysisMS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		p.GuildID = guildID
		p.LastSeen = fromMS(lastSeenMS)
		p.Analyzed = analysisMS.Valid
		p.PersonalityNotes = notes.String
		p.CommonTopics = decodeTopics(topics.String)
		p.InteractionStyle = style.String
		p.GuildMessageCount = int(count.Int64)
		p.AnalysisDate = nullMS(analysisMS)
		out = &p
		return nil
	})
	return out, err
}

func encodeTopics(topics []string) string {
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTopics(raw string) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}
