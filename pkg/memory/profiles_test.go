package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertProfile_UnknownUserIsIntegrityError(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.UpsertProfile(context.Background(), ProfileInput{UserID: "ghost", GuildID: "g1", Notes: "n/a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM user_profiles`))
}

func TestProfile_RoundTripWithLiveCount(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.StoreMessage(ctx, testMessage("u1", "guild one", time.Time{}))
		require.NoError(t, err)
	}
	other := testMessage("u1", "guild two", time.Time{})
	other.GuildID = "g2"
	other.ChannelID = "c2"
	_, err := store.StoreMessage(ctx, other)
	require.NoError(t, err)

	before, err := store.GetProfile(ctx, "u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.False(t, before.Analyzed)
	assert.Empty(t, before.CommonTopics)
	assert.Equal(t, 4, before.TotalMessages)

	require.NoError(t, store.UpsertProfile(ctx, ProfileInput{
		UserID: "u1", GuildID: "g1",
		Notes:  "Curious and upbeat.",
		Topics: []string{"go", " sqlite ", ""},
		Style:  "casual",
	}))

	got, err := store.GetProfile(ctx, "u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Analyzed)
	assert.Equal(t, "Curious and upbeat.", got.PersonalityNotes)
	assert.Equal(t, []string{"go", "sqlite"}, got.CommonTopics)
	assert.Equal(t, "casual", got.InteractionStyle)
	assert.Equal(t, 3, got.GuildMessageCount)
	assert.Equal(t, "u1_name", got.Username)
	assert.True(t, got.AnalysisDate.Equal(clock.Now()))

	_, err = store.StoreMessage(ctx, testMessage("u1", "one more", time.Time{}))
	require.NoError(t, err)
	clock.Advance(time.Hour)
	require.NoError(t, store.UpsertProfile(ctx, ProfileInput{UserID: "u1", GuildID: "g1", Notes: "Second pass.", Style: "formal"}))

	got, err = store.GetProfile(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, "Second pass.", got.PersonalityNotes)
	assert.Equal(t, "formal", got.InteractionStyle)
	assert.Empty(t, got.CommonTopics)
	assert.Equal(t, 4, got.GuildMessageCount)
	assert.True(t, got.AnalysisDate.Equal(clock.Now()))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM user_profiles`))

	g2, err := store.GetProfile(ctx, "u1", "g2")
	require.NoError(t, err)
	assert.False(t, g2.Analyzed)
}

func TestGetProfile_UnknownUserIsNil(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.GetProfile(context.Background(), "nobody", "g1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertProfile_RegistersMissingGuild(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.RegisterActivity(ctx, Activity{GuildID: "g1", ChannelID: "c1", UserID: "u1"}))

	require.NoError(t, store.UpsertProfile(ctx, ProfileInput{UserID: "u1", GuildID: "g-new", Notes: "quiet"}))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM guilds WHERE guild_id = 'g-new'`))

	got, err := store.GetProfile(ctx, "u1", "g-new")
	require.NoError(t, err)
	assert.Equal(t, 0, got.GuildMessageCount)
}

func TestDecodeTopics_Malformed(t *testing.T) {
	assert.Equal(t, []string{}, decodeTopics("not json"))
	assert.Equal(t, []string{}, decodeTopics(""))
	assert.Equal(t, []string{"a"}, decodeTopics(`["a"]`))
}
