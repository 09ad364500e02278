package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RegisterActivity records guild, channel and user presence without storing
// a message. It does not change users.total_messages.
func (s *SQLiteStore) RegisterActivity(ctx context.Context, a Activity) error {
	if err := a.validate(); err != nil {
		return fmt.Errorf("register activity: %w", err)
	}
	if a.At.IsZero() {
		a.At = s.now()
	}
	return s.withWrite(ctx, "register activity", func(ctx context.Context, tx *sql.Tx) error {
		return registerActivityTx(ctx, tx, a, false)
	})
}

func (a Activity) validate() error {
	switch {
	case strings.TrimSpace(a.GuildID) == "":
		return fmt.Errorf("%w: empty guild id", ErrInvalidInput)
	case strings.TrimSpace(a.ChannelID) == "":
		return fmt.Errorf("%w: empty channel id", ErrInvalidInput)
	case strings.TrimSpace(a.UserID) == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	return nil
}

// registerActivityTx upserts the guild, channel and user for one observed
// message. Seen timestamps only move outward so backfilled history never
// rewinds last_seen.
func registerActivityTx(ctx context.Context, tx *sql.Tx, a Activity, countMessage bool) error {
	at := toMS(a.At)
	if err := ensureGuildTx(ctx, tx, a.GuildID, a.GuildName, at); err != nil {
		return err
	}
	if err := ensureChannelTx(ctx, tx, a.GuildID, a.ChannelID, a.ChannelName, a.ChannelKind, at); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users(user_id, username, display_name, first_seen_ms, last_seen_ms, total_messages)
VALUES(?, ?, ?, ?, ?, 0)
ON CONFLICT(user_id) DO NOTHING`, a.UserID, a.Username, a.DisplayName, at, at); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	increment := 0
	if countMessage {
		increment = 1
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE users SET
	username = COALESCE(NULLIF(?, ''), username),
	display_name = COALESCE(NULLIF(?, ''), display_name),
	first_seen_ms = MIN(first_seen_ms, ?),
	last_seen_ms = MAX(last_seen_ms, ?),
	total_messages = total_messages + ?
WHERE user_id = ?`, a.Username, a.DisplayName, at, at, increment, a.UserID); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func ensureGuildTx(ctx context.Context, tx *sql.Tx, guildID, name string, atMS int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO guilds(guild_id, guild_name, created_at_ms, last_activity_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(guild_id) DO UPDATE SET
	guild_name = CASE WHEN ? <> '' THEN excluded.guild_name ELSE guilds.guild_name END,
	last_activity_ms = MAX(guilds.last_activity_ms, excluded.last_activity_ms)`,
		guildID, defaultName(name, "Guild_", guildID), atMS, atMS, name); err != nil {
		return fmt.Errorf("register guild: %w", err)
	}
	return nil
}

func ensureChannelTx(ctx context.Context, tx *sql.Tx, guildID, channelID, name, kind string, atMS int64) error {
	if kind == "" {
		kind = "text"
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO channels(channel_id, guild_id, channel_name, channel_type, created_at_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(channel_id) DO UPDATE SET
	channel_name = CASE WHEN ? <> '' THEN excluded.channel_name ELSE channels.channel_name END`,
		channelID, guildID, defaultName(name, "Channel_", channelID), kind, atMS, name); err != nil {
		return fmt.Errorf("register channel: %w", err)
	}
	return nil
}

func defaultName(name, prefix, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return prefix + id
}
