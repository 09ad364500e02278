package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// coreTables lists the fixed tables in creation order. Everything else in
// the database is a per-user partition registered in user_partitions.
var coreTables = []string{
	"guilds",
	"channels",
	"users",
	"messages",
	"user_partitions",
	"user_profiles",
	"context_summaries",
	"conversation_threads",
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS guilds (
		guild_id TEXT PRIMARY KEY,
		guild_name TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL,
		last_activity_ms INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS channels (
		channel_id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL REFERENCES guilds(guild_id),
		channel_name TEXT NOT NULL DEFAULT '',
		channel_type TEXT NOT NULL DEFAULT 'text',
		created_at_ms INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		first_seen_ms INTEGER NOT NULL,
		last_seen_ms INTEGER NOT NULL,
		total_messages INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS users_last_seen_idx ON users(last_seen_ms);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		guild_id TEXT NOT NULL REFERENCES guilds(guild_id),
		channel_id TEXT NOT NULL REFERENCES channels(channel_id),
		content TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'user',
		reply_to_id INTEGER REFERENCES messages(id) ON DELETE SET NULL,
		edited_at_ms INTEGER,
		word_count INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS messages_user_time_idx ON messages(user_id, timestamp_ms);`,
	`CREATE INDEX IF NOT EXISTS messages_channel_time_idx ON messages(channel_id, timestamp_ms);`,
	`CREATE INDEX IF NOT EXISTS messages_guild_time_idx ON messages(guild_id, timestamp_ms);`,
	`CREATE TABLE IF NOT EXISTS user_partitions (
		user_id TEXT PRIMARY KEY REFERENCES users(user_id),
		table_name TEXT NOT NULL UNIQUE,
		created_at_ms INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT NOT NULL REFERENCES users(user_id),
		guild_id TEXT NOT NULL REFERENCES guilds(guild_id),
		personality_notes TEXT NOT NULL DEFAULT '',
		common_topics TEXT NOT NULL DEFAULT '[]',
		interaction_style TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		analysis_date_ms INTEGER NOT NULL,
		PRIMARY KEY (user_id, guild_id)
	);`,
	`CREATE TABLE IF NOT EXISTS context_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL REFERENCES guilds(guild_id),
		channel_id TEXT NOT NULL REFERENCES channels(channel_id),
		summary TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		start_time_ms INTEGER NOT NULL,
		end_time_ms INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL,
		CHECK (end_time_ms >= start_time_ms)
	);`,
	`CREATE INDEX IF NOT EXISTS context_summaries_channel_idx ON context_summaries(guild_id, channel_id, created_at_ms);`,
	// Reserved for thread tracking; nothing writes to it yet.
	`CREATE TABLE IF NOT EXISTS conversation_threads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL REFERENCES guilds(guild_id),
		channel_id TEXT NOT NULL REFERENCES channels(channel_id),
		thread_name TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		topic_keywords TEXT NOT NULL DEFAULT '[]',
		start_time_ms INTEGER NOT NULL,
		last_activity_ms INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		summary TEXT NOT NULL DEFAULT ''
	);`,
}

// EnsureSchema creates every fixed table and index in one transaction. It
// is idempotent and never touches existing rows.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	err := s.withWrite(ctx, "ensure schema", func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range schemaStmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("init sqlite schema failed on %q: %w: %w", trimSQL(stmt), ErrSchema, err)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrSchema) {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return err
}

// partitionStmts returns the DDL for one user's partition table.
func partitionStmts(table string) []string {
	ident := quoteIdent(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		reply_to_id INTEGER REFERENCES messages(id) ON DELETE SET NULL
	);`, ident),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(guild_id, timestamp_ms DESC);`, quoteIdent(table+"_time_idx"), ident),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(reply_to_id);`, quoteIdent(table+"_reply_idx"), ident),
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}
