package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const defaultListUsersLimit = 20

// GetUserStats reports registry fields, partition presence and, when guildID
// is set, per-guild message aggregates. Unknown users return Known=false.
func (s *SQLiteStore) GetUserStats(ctx context.Context, userID, guildID string) (UserStats, error) {
	var out UserStats
	err := s.withRead(ctx, "get user stats", func(ctx context.Context) error {
		out = UserStats{UserID: userID}
		var firstMS, lastMS int64
		err := s.db.QueryRowContext(ctx, `
SELECT username, display_name, total_messages, first_seen_ms, last_seen_ms
FROM users WHERE user_id = ?`, userID).Scan(&out.Username, &out.DisplayName, &out.TotalMessages, &firstMS, &lastMS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Known = true
		out.FirstSeen = fromMS(firstMS)
		out.LastSeen = fromMS(lastMS)

		table, ok, err := lookupPartition(ctx, s.db, userID)
		if err != nil {
			return err
		}
		out.HasPartition = ok
		out.PartitionTable = table

		if guildID == "" {
			return nil
		}
		var avg sql.NullFloat64
		var first, last sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), AVG(word_count), MIN(timestamp_ms), MAX(timestamp_ms)
FROM messages WHERE user_id = ? AND guild_id = ?`, userID, guildID).Scan(&out.GuildMessageCount, &avg, &first, &last); err != nil {
			return fmt.Errorf("aggregate user messages: %w", err)
		}
		out.AvgWordCount = avg.Float64
		out.FirstMessage = nullMS(first)
		out.LastMessage = nullMS(last)
		return nil
	})
	return out, err
}

// ListUsers returns users by most recent activity. With a guildID only users
// who posted in that guild are listed, each with their guild message count.
func (s *SQLiteStore) ListUsers(ctx context.Context, guildID string, limit int) ([]UserSummary, error) {
	if limit <= 0 {
		limit = defaultListUsersLimit
	}
	var out []UserSummary
	err := s.withRead(ctx, "list users", func(ctx context.Context) error {
		out = []UserSummary{}
		var rows *sql.Rows
		var err error
		if guildID == "" {
			rows, err = s.db.QueryContext(ctx, `
SELECT user_id, username, display_name, total_messages, last_seen_ms, 0
FROM users
ORDER BY last_seen_ms DESC, user_id
LIMIT ?`, limit)
		} else {
			rows, err = s.db.QueryContext(ctx, `
SELECT u.user_id, u.username, u.display_name, u.total_messages, u.last_seen_ms, COUNT(m.id)
FROM users u
JOIN messages m ON m.user_id = u.user_id AND m.guild_id = ?
GROUP BY u.user_id
ORDER BY u.last_seen_ms DESC, u.user_id
LIMIT ?`, guildID, limit)
		}
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var u UserSummary
			var lastMS int64
			if err := rows.Scan(&u.UserID, &u.Username, &u.DisplayName, &u.TotalMessages, &lastMS, &u.GuildMessages); err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			u.LastSeen = fromMS(lastMS)
			out = append(out, u)
		}
		return rows.Err()
	})
	return out, err
}

// ListTables reports which fixed tables exist and every partition table.
func (s *SQLiteStore) ListTables(ctx context.Context) (TableListing, error) {
	var names []string
	err := s.withRead(ctx, "list tables", func(ctx context.Context) error {
		names = nil
		rows, err := s.db.QueryContext(ctx, `
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan table name: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return TableListing{}, err
	}

	core := make(map[string]bool, len(coreTables))
	for _, t := range coreTables {
		core[t] = true
	}
	out := TableListing{Core: []string{}, Partitions: []string{}}
	for _, name := range names {
		switch {
		case core[name]:
			out.Core = append(out.Core, name)
		case strings.HasPrefix(name, partitionPrefix):
			out.Partitions = append(out.Partitions, name)
		}
	}
	sort.Strings(out.Core)
	return out, nil
}

// GetChannelStatus summarizes the channel's last 24 hours and its stored
// summaries.
func (s *SQLiteStore) GetChannelStatus(ctx context.Context, guildID, channelID string) (ChannelStatus, error) {
	since := toMS(s.now().Add(-defaultContextHours * time.Hour))
	var out ChannelStatus
	err := s.withRead(ctx, "get channel status", func(ctx context.Context) error {
		out = ChannelStatus{GuildID: guildID, ChannelID: channelID}
		var words sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), SUM(word_count) FROM messages
WHERE guild_id = ? AND channel_id = ? AND timestamp_ms > ?`, guildID, channelID, since).Scan(&out.RecentMessages, &words); err != nil {
			return fmt.Errorf("count recent messages: %w", err)
		}
		out.ContextWordCount = int(words.Int64)

		var last sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), MAX(created_at_ms) FROM context_summaries
WHERE guild_id = ? AND channel_id = ?`, guildID, channelID).Scan(&out.Summaries, &last); err != nil {
			return fmt.Errorf("count summaries: %w", err)
		}
		out.LastSummaryAt = nullMS(last)
		return nil
	})
	return out, err
}
