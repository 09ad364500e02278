package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotsetgreg/rumi/pkg/logger"
)

// Cleanup deletes raw messages older than policy.RawDays and summaries older
// than policy.SummaryDays. Every table is swept in its own transaction.
// Partitions go first, each attempted even when another fails; the returned
// error joins all per-table failures.
func (s *SQLiteStore) Cleanup(ctx context.Context, policy RetentionPolicy) (CleanupReport, error) {
	policy = policy.withDefaults()
	now := s.now()
	report := CleanupReport{
		RunAt:         now,
		RawCutoff:     now.AddDate(0, 0, -policy.RawDays),
		SummaryCutoff: now.AddDate(0, 0, -policy.SummaryDays),
	}
	rawCutoff := toMS(report.RawCutoff)

	var errs []error
	partitions, err := s.listPartitions(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("enumerate partitions: %w", err))
	}
	for _, p := range partitions {
		n, err := s.deleteOlderThan(ctx, p.Table, "timestamp_ms", rawCutoff)
		if err != nil {
			report.FailedTables = append(report.FailedTables, p.Table)
			errs = append(errs, err)
			continue
		}
		report.PartitionRowsDeleted += n
		report.PartitionsSwept++
	}

	if n, err := s.deleteOlderThan(ctx, "messages", "timestamp_ms", rawCutoff); err != nil {
		report.FailedTables = append(report.FailedTables, "messages")
		errs = append(errs, err)
	} else {
		report.MessagesDeleted = n
	}

	if n, err := s.deleteOlderThan(ctx, "context_summaries", "created_at_ms", toMS(report.SummaryCutoff)); err != nil {
		report.FailedTables = append(report.FailedTables, "context_summaries")
		errs = append(errs, err)
	} else {
		report.SummariesDeleted = n
	}

	fields := map[string]any{
		"messages_deleted":       report.MessagesDeleted,
		"partition_rows_deleted": report.PartitionRowsDeleted,
		"partitions_swept":       report.PartitionsSwept,
		"summaries_deleted":      report.SummariesDeleted,
	}
	if len(errs) > 0 {
		fields["failed_tables"] = report.FailedTables
		logger.WarnCF("memory", "Retention cleanup finished with failures", fields)
	} else {
		logger.InfoCF("memory", "Retention cleanup finished", fields)
	}
	return report, errors.Join(errs...)
}

func (s *SQLiteStore) deleteOlderThan(ctx context.Context, table, column string, cutoffMS int64) (int64, error) {
	var n int64
	err := s.withWrite(ctx, "cleanup "+table, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, quoteIdent(table), column), cutoffMS)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
