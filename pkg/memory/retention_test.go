package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRetentionData(t *testing.T, store *SQLiteStore, now time.Time) {
	t.Helper()
	ctx := context.Background()
	for _, days := range []int{5, 31, 100} {
		_, err := store.StoreMessage(ctx, testMessage("u1", "aged message", now.AddDate(0, 0, -days)))
		require.NoError(t, err)
	}
	for _, days := range []int{5, 95} {
		_, err := store.StoreSummary(ctx, SummaryInput{
			GuildID: "g1", ChannelID: "c1",
			Summary:      "aged summary",
			MessageCount: 1,
			Start:        now.AddDate(0, 0, -days-1),
			End:          now.AddDate(0, 0, -days),
			CreatedAt:    now.AddDate(0, 0, -days),
		})
		require.NoError(t, err)
	}
}

func TestCleanup_AppliesBothHorizons(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	now := clock.Now()
	seedRetentionData(t, store, now)

	report, err := store.Cleanup(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.MessagesDeleted)
	assert.EqualValues(t, 2, report.PartitionRowsDeleted)
	assert.EqualValues(t, 1, report.SummariesDeleted)
	assert.Equal(t, 1, report.PartitionsSwept)
	assert.Empty(t, report.FailedTables)
	assert.True(t, report.RawCutoff.Equal(now.AddDate(0, 0, -30)))

	table := PartitionTableName("u1")
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM `+quoteIdent(table)))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM context_summaries`))
	assert.Equal(t, 0, countRows(t, store,
		`SELECT COUNT(*) FROM `+quoteIdent(table)+` p LEFT JOIN messages m ON m.id = p.message_id WHERE m.id IS NULL`))

	var remaining int64
	require.NoError(t, store.db.QueryRow(`SELECT timestamp_ms FROM messages`).Scan(&remaining))
	assert.Equal(t, toMS(now.AddDate(0, 0, -5)), remaining)

	again, err := store.Cleanup(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Zero(t, again.MessagesDeleted)
	assert.Zero(t, again.PartitionRowsDeleted)
	assert.Zero(t, again.SummariesDeleted)
}

func TestCleanup_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	seedRetentionData(t, store, clock.Now())

	report, err := store.Cleanup(ctx, RetentionPolicy{RawDays: 365, SummaryDays: 1})
	require.NoError(t, err)
	assert.Zero(t, report.MessagesDeleted)
	assert.EqualValues(t, 2, report.SummariesDeleted)
	assert.Equal(t, 3, countRows(t, store, `SELECT COUNT(*) FROM messages`))
}

func TestCleanup_LedgerDeleteCascadesToPartition(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	id, err := store.StoreMessage(ctx, testMessage("u1", "to be removed", clock.Now()))
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM `+quoteIdent(PartitionTableName("u1"))))
}

func TestCleanup_ContinuesPastBrokenPartition(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	now := clock.Now()
	seedRetentionData(t, store, now)

	require.NoError(t, store.RegisterActivity(ctx, Activity{GuildID: "g1", ChannelID: "c1", UserID: "ghost"}))
	_, err := store.db.ExecContext(ctx, `
INSERT INTO user_partitions(user_id, table_name, created_at_ms) VALUES('ghost', 'user_messages_aaa_missing', 0)`)
	require.NoError(t, err)

	report, err := store.Cleanup(ctx, DefaultRetention)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_messages_aaa_missing")
	assert.Equal(t, []string{"user_messages_aaa_missing"}, report.FailedTables)
	assert.Equal(t, 1, report.PartitionsSwept)
	assert.EqualValues(t, 2, report.PartitionRowsDeleted)
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM context_summaries`))
}

func TestCleanup_ClearsPartitionRepliesToSweptMessages(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	now := clock.Now()

	old, err := store.StoreMessage(ctx, testMessage("u1", "old", now.AddDate(0, 0, -40)))
	require.NoError(t, err)
	in := testMessage("u2", "late reply", now.AddDate(0, 0, -1))
	in.ReplyToID = old
	reply, err := store.StoreMessage(ctx, in)
	require.NoError(t, err)

	_, err = store.Cleanup(ctx, DefaultRetention)
	require.NoError(t, err)

	msg, err := store.GetMessage(ctx, reply)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Zero(t, msg.ReplyToID)

	rows, err := store.GetUserMessages(ctx, UserMessageQuery{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].ReplyToID)
	assert.Equal(t, 0, countRows(t, store,
		`SELECT COUNT(*) FROM `+quoteIdent(PartitionTableName("u2"))+` WHERE reply_to_id IS NOT NULL`))
}
