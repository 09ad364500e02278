package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// SummaryQuery selects summaries for one channel. Zero Since disables the
// time filter; non-positive Limit returns every match.
type SummaryQuery struct {
	GuildID   string
	ChannelID string
	Since     time.Time
	Limit     int
	// Newest reverses the default oldest-first order.
	Newest bool
}

// StoreSummary appends a summary of the exact range it covers. Missing guild
// and channel rows are registered first.
func (s *SQLiteStore) StoreSummary(ctx context.Context, in SummaryInput) (int64, error) {
	switch {
	case strings.TrimSpace(in.GuildID) == "" || strings.TrimSpace(in.ChannelID) == "":
		return 0, fmt.Errorf("store summary: %w: empty guild or channel id", ErrInvalidInput)
	case in.Start.IsZero() || in.End.IsZero():
		return 0, fmt.Errorf("store summary: %w: missing range", ErrInvalidInput)
	case in.End.Before(in.Start):
		return 0, fmt.Errorf("store summary: %w: end %s before start %s", ErrInvalidInput, in.End, in.Start)
	case in.MessageCount < 0:
		return 0, fmt.Errorf("store summary: %w: negative message count", ErrInvalidInput)
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var id int64
	err := s.withWrite(ctx, "store summary", func(ctx context.Context, tx *sql.Tx) error {
		at := toMS(created)
		if err := ensureGuildTx(ctx, tx, in.GuildID, "", at); err != nil {
			return err
		}
		if err := ensureChannelTx(ctx, tx, in.GuildID, in.ChannelID, "", "", at); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO context_summaries(guild_id, channel_id, summary, message_count, start_time_ms, end_time_ms, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)`, in.GuildID, in.ChannelID, in.Summary, in.MessageCount, toMS(in.Start), toMS(in.End), at)
		if err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListSummaries returns the channel's summaries created strictly after
// q.Since.
func (s *SQLiteStore) ListSummaries(ctx context.Context, q SummaryQuery) ([]Summary, error) {
	since := int64(math.MinInt64)
	if !q.Since.IsZero() {
		since = toMS(q.Since)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	order := "ASC"
	if q.Newest {
		order = "DESC"
	}

	var out []Summary
	err := s.withRead(ctx, "list summaries", func(ctx context.Context) error {
		out = []Summary{}
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, guild_id, channel_id, summary, message_count, start_time_ms, end_time_ms, created_at_ms
FROM context_summaries
WHERE guild_id = ? AND channel_id = ? AND created_at_ms > ?
ORDER BY created_at_ms %s, id %s
LIMIT ?`, order, order), q.GuildID, q.ChannelID, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sm Summary
			var startMS, endMS, createdMS int64
			if err := rows.Scan(&sm.ID, &sm.GuildID, &sm.ChannelID, &sm.Summary, &sm.MessageCount, &startMS, &endMS, &createdMS); err != nil {
				return fmt.Errorf("scan summary: %w", err)
			}
			sm.Start = fromMS(startMS)
			sm.End = fromMS(endMS)
			sm.CreatedAt = fromMS(createdMS)
			out = append(out, sm)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
