package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultContextHours = 24
	defaultContextLimit = 100
	defaultContextDays  = 7

	// NoConversationContext is returned by GetConversationContext when the
	// channel has no summaries in range.
	NoConversationContext = "No recent conversation context available."

	conversationContextHeader = "## Recent Conversation Context"
	summaryTimeLayout         = "2006-01-02 15:04 UTC"
)

// GetRecentContext returns the channel's messages from the last hours,
// oldest first, capped at the most recent limit rows. Non-positive hours and
// limit fall back to 24 and 100.
func (s *SQLiteStore) GetRecentContext(ctx context.Context, guildID, channelID string, hours, limit int) ([]ContextMessage, error) {
	if hours <= 0 {
		hours = defaultContextHours
	}
	if limit <= 0 {
		limit = defaultContextLimit
	}
	since := toMS(s.now().Add(-time.Duration(hours) * time.Hour))

	var out []ContextMessage
	err := s.withRead(ctx, "get recent context", func(ctx context.Context) error {
		out = make([]ContextMessage, 0, limit)
		rows, err := s.db.QueryContext(ctx, `
SELECT m.user_id, u.username, u.display_name, m.content, m.timestamp_ms, m.message_type, m.word_count, m.reply_to_id
FROM messages m
JOIN users u ON u.user_id = m.user_id
WHERE m.guild_id = ? AND m.channel_id = ? AND m.timestamp_ms > ?
ORDER BY m.timestamp_ms DESC, m.id DESC
LIMIT ?`, guildID, channelID, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m ContextMessage
			var tsMS int64
			var reply sql.NullInt64
			if err := rows.Scan(&m.UserID, &m.Username, &m.DisplayName, &m.Content, &tsMS, &m.Kind, &m.WordCount, &reply); err != nil {
				return fmt.Errorf("scan context message: %w", err)
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

// GetConversationContext renders the channel's summaries created within
// daysBack as a prompt-ready block, oldest first.
func (s *SQLiteStore) GetConversationContext(ctx context.Context, guildID, channelID string, daysBack int) (string, error) {
	if daysBack <= 0 {
		daysBack = defaultContextDays
	}
	summaries, err := s.ListSummaries(ctx, SummaryQuery{
		GuildID:   guildID,
		ChannelID: channelID,
		Since:     s.now().AddDate(0, 0, -daysBack),
	})
	if err != nil {
		return "", fmt.Errorf("get conversation context: %w", err)
	}
	return FormatConversationContext(summaries), nil
}

// FormatConversationContext renders summaries in the order given.
func FormatConversationContext(summaries []Summary) string {
	if len(summaries) == 0 {
		return NoConversationContext
	}
	var b strings.Builder
	b.WriteString(conversationContextHeader)
	b.WriteString("\n")
	for _, sm := range summaries {
		fmt.Fprintf(&b, "\n**%s - %s** (%d messages):\n%s\n---",
			sm.Start.UTC().Format(summaryTimeLayout),
			sm.End.UTC().Format(summaryTimeLayout),
			sm.MessageCount,
			sm.Summary)
	}
	return b.String()
}
