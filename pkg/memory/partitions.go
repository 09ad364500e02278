package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	partitionPrefix    = "user_messages_"
	partitionSlugLimit = 40
)

// PartitionTableName derives the partition table for a user. The readable
// slug keeps only [a-z0-9_]; the hash suffix keeps ids that sanitize to the
// same slug apart.
func PartitionTableName(userID string) string {
	var slug strings.Builder
	for _, r := range strings.ToLower(userID) {
		if slug.Len() >= partitionSlugLimit {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			slug.WriteRune(r)
		} else {
			slug.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(userID))
	return partitionPrefix + slug.String() + "_" + hex.EncodeToString(sum[:6])
}

// Partition is one user_partitions registry entry.
type Partition struct {
	UserID string
	Table  string
}

// ensurePartitionTx returns the user's partition table, registering it on
// first use. The DDL runs on every call so a registered table that went
// missing is recreated.
func ensurePartitionTx(ctx context.Context, tx *sql.Tx, userID string, atMS int64) (string, error) {
	table, registered, err := lookupPartition(ctx, tx, userID)
	if err != nil {
		return "", err
	}
	if !registered {
		table = PartitionTableName(userID)
	}

	for _, stmt := range partitionStmts(table) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("create partition %s: %w: %w", table, ErrSchema, err)
		}
	}
	if registered {
		return table, nil
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_partitions(user_id, table_name, created_at_ms)
VALUES(?, ?, ?)`, userID, table, atMS); err != nil {
		return "", fmt.Errorf("register partition %s: %w", table, err)
	}
	return table, nil
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupPartition(ctx context.Context, q rowQuerier, userID string) (string, bool, error) {
	var table string
	err := q.QueryRowContext(ctx, `SELECT table_name FROM user_partitions WHERE user_id = ?`, userID).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup partition: %w", err)
	}
	return table, true, nil
}

func (s *SQLiteStore) listPartitions(ctx context.Context) ([]Partition, error) {
	var out []Partition
	err := s.withRead(ctx, "list partitions", func(ctx context.Context) error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `SELECT user_id, table_name FROM user_partitions ORDER BY table_name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Partition
			if err := rows.Scan(&p.UserID, &p.Table); err != nil {
				return fmt.Errorf("scan partition: %w", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
