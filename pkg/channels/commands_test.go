package channels

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/rumi/pkg/ai"
	"github.com/dotsetgreg/rumi/pkg/memory"
	"github.com/dotsetgreg/rumi/pkg/rumination"
)

var commandNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeRuminator struct {
	summary    rumination.SummaryResult
	summaryErr error
	window     rumination.Window
	analysis   rumination.AnalysisResult
	analyzeErr error
	analyzed   string
	reply      string
	replyErr   error
	replyReq   rumination.ReplyRequest
	musing     rumination.RuminateResult
	musingErr  error
	musingReq  rumination.RuminateRequest
}

func (f *fakeRuminator) SummarizeWindow(_ context.Context, _, _ string, w rumination.Window) (rumination.SummaryResult, error) {
	f.window = w
	res := f.summary
	res.Window = w
	res.Label = w.Label()
	return res, f.summaryErr
}

func (f *fakeRuminator) AnalyzeUser(_ context.Context, userID, _, _ string) (rumination.AnalysisResult, error) {
	f.analyzed = userID
	return f.analysis, f.analyzeErr
}

func (f *fakeRuminator) Reply(_ context.Context, req rumination.ReplyRequest) (string, error) {
	f.replyReq = req
	return f.reply, f.replyErr
}

func (f *fakeRuminator) Ruminate(_ context.Context, req rumination.RuminateRequest) (rumination.RuminateResult, error) {
	f.musingReq = req
	return f.musing, f.musingErr
}

func newCommandStore(t *testing.T) *memory.SQLiteStore {
	t.Helper()
	store, err := memory.Open(memory.Config{
		Path: filepath.Join(t.TempDir(), "rumi.db"),
		Now:  func() time.Time { return commandNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for i, content := range []string{"hello there", "how is everyone", "shipping the release today"} {
		_, err := store.StoreMessage(context.Background(), memory.MessageInput{
			GuildID: "g1", ChannelID: "c1", UserID: "u1", Username: "alice", DisplayName: "Alice",
			Content: content, Timestamp: commandNow.Add(-time.Duration(3-i) * time.Hour),
		})
		require.NoError(t, err)
	}
	return store
}

func newTestCommands(t *testing.T, r *fakeRuminator) (*Commands, *memory.SQLiteStore) {
	store := newCommandStore(t)
	c := NewCommands(store, r, memory.DefaultRetention, "test-model")
	c.now = func() time.Time { return commandNow }
	return c, store
}

func TestDispatch_SummaryRendersStats(t *testing.T) {
	r := &fakeRuminator{summary: rumination.SummaryResult{
		Summary: "**The Vibe** productive", MessageCount: 3, TotalWords: 1234, SummaryWords: 3,
	}}
	c, _ := newTestCommands(t, r)

	out := c.Dispatch(context.Background(), CommandRequest{Name: "summary", GuildID: "g1", ChannelID: "c1", Timeframe: "hours", Amount: 5})
	assert.Equal(t, rumination.Window{Kind: rumination.WindowHours, Amount: 5}, r.window)
	assert.Contains(t, out, "• Period: last 5 hour(s)")
	assert.Contains(t, out, "• Messages analyzed: 3")
	assert.Contains(t, out, "• Total words: ~1,234")
	assert.Contains(t, out, "---\n\n**The Vibe** productive")
}

func TestDispatch_SummaryEmptyAndErrors(t *testing.T) {
	r := &fakeRuminator{summaryErr: rumination.ErrNoMessages}
	c, _ := newTestCommands(t, r)
	out := c.Dispatch(context.Background(), CommandRequest{Name: "summary", GuildID: "g1", ChannelID: "c1"})
	assert.Equal(t, "No messages found in the last 2 day(s).", out)

	r.summaryErr = errors.New("model offline")
	out = c.Dispatch(context.Background(), CommandRequest{Name: "summary", GuildID: "g1", ChannelID: "c1"})
	assert.Contains(t, out, "model offline")

	out = c.Dispatch(context.Background(), CommandRequest{Name: "summary", Timeframe: "weeks"})
	assert.Contains(t, out, "unknown window")
}

func TestDispatch_MemoryStatusAndContext(t *testing.T) {
	c, store := newTestCommands(t, &fakeRuminator{})
	_, err := store.StoreSummary(context.Background(), memory.SummaryInput{
		GuildID: "g1", ChannelID: "c1", Summary: "they said hello", MessageCount: 3,
		Start: commandNow.Add(-3 * time.Hour), End: commandNow.Add(-time.Hour),
		CreatedAt: commandNow.Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	out := c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "status", GuildID: "g1", ChannelID: "c1"})
	assert.Contains(t, out, "Recent messages (24h): 3")
	assert.Contains(t, out, "Stored summaries: 1")
	assert.Contains(t, out, "Last summary: 2 hours ago")
	assert.Contains(t, out, "Connected (test-model)")

	out = c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "context", GuildID: "g1", ChannelID: "c1"})
	assert.Contains(t, out, "## Recent Conversation Context")
	assert.Contains(t, out, "they said hello")
}

func TestDispatch_MemoryAnalyze(t *testing.T) {
	r := &fakeRuminator{analysis: rumination.AnalysisResult{
		Analysis:     ai.Analysis{Notes: "Upbeat.", Topics: []string{"release", "go"}, Style: "casual"},
		MessageCount: 3,
	}}
	c, _ := newTestCommands(t, r)

	out := c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "analyze", GuildID: "g1"})
	assert.Equal(t, "Pick a user to analyze.", out)

	out = c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "analyze", GuildID: "g1", TargetUserID: "u1", TargetName: "Alice"})
	assert.Equal(t, "u1", r.analyzed)
	assert.Contains(t, out, "**User Analysis: Alice**")
	assert.Contains(t, out, "**Common Topics:** release, go")
	assert.Contains(t, out, "based on 3 recent messages")

	r.analyzeErr = rumination.ErrNoMessages
	out = c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "analyze", GuildID: "g1", TargetUserID: "u9", TargetName: "Nobody"})
	assert.Equal(t, "No recent messages found for Nobody.", out)
}

func TestDispatch_MemoryCleanup(t *testing.T) {
	c, store := newTestCommands(t, &fakeRuminator{})
	_, err := store.StoreMessage(context.Background(), memory.MessageInput{
		GuildID: "g1", ChannelID: "c1", UserID: "u1", Content: "ancient",
		Timestamp: commandNow.Add(-40 * 24 * time.Hour),
	})
	require.NoError(t, err)

	out := c.Dispatch(context.Background(), CommandRequest{Name: "memory", Action: "cleanup"})
	assert.Contains(t, out, "Memory Cleanup Complete")
	assert.Contains(t, out, "Messages removed: 1")
	assert.Contains(t, out, "Partition rows removed: 1 across 1 tables")
}

func TestDispatch_DatabaseViews(t *testing.T) {
	c, _ := newTestCommands(t, &fakeRuminator{})
	ctx := context.Background()

	out := c.Dispatch(ctx, CommandRequest{Name: "database", Action: "tables"})
	assert.Contains(t, out, "`messages`")
	assert.Contains(t, out, "**User Message Tables (1):**")
	assert.Contains(t, out, "`"+memory.PartitionTableName("u1")+"`")

	out = c.Dispatch(ctx, CommandRequest{Name: "database", Action: "users", GuildID: "g1"})
	assert.Contains(t, out, "• **Alice** (@alice) - 3 messages in this guild (last seen: 2025-03-10)")

	out = c.Dispatch(ctx, CommandRequest{Name: "database", Action: "user_stats", GuildID: "g1", TargetUserID: "u1", TargetName: "Alice"})
	assert.Contains(t, out, "• Total Messages: 3")
	assert.Contains(t, out, "• Messages: 3")
	assert.Contains(t, out, "Has Dedicated Table: ✅")
	assert.NotContains(t, out, "Profile Analysis")

	out = c.Dispatch(ctx, CommandRequest{Name: "database", Action: "user_stats", GuildID: "g1", TargetUserID: "ghost", TargetName: "Ghost"})
	assert.Equal(t, "No data found for Ghost in database.", out)

	out = c.Dispatch(ctx, CommandRequest{Name: "database", Action: "user_messages", GuildID: "g1", TargetUserID: "u1", TargetName: "Alice"})
	assert.Contains(t, out, "**2025-03-10 09:00** (2 words): hello there")
	assert.Contains(t, out, "*Showing 3 of 3 recent messages*")

	out = c.Dispatch(ctx, CommandRequest{Name: "database", Action: "bogus"})
	assert.Contains(t, out, `unknown action "bogus"`)
}

func TestDispatch_Chat(t *testing.T) {
	r := &fakeRuminator{reply: "Release looks good to me."}
	c, _ := newTestCommands(t, r)

	out := c.Dispatch(context.Background(), CommandRequest{
		Name: "chat", GuildID: "g1", ChannelID: "c1", UserID: "u1", Prompt: "ship it?", Amount: 15,
	})
	assert.Equal(t, "Release looks good to me.", out)
	assert.Equal(t, rumination.ReplyRequest{
		GuildID: "g1", ChannelID: "c1", UserID: "u1", Prompt: "ship it?", ContextMessages: 15,
	}, r.replyReq)

	r.replyErr = fmt.Errorf("reply: %w", rumination.ErrEmptyPrompt)
	out = c.Dispatch(context.Background(), CommandRequest{Name: "chat"})
	assert.Equal(t, "Give me something to respond to.", out)

	r.replyErr = errors.New("model offline")
	out = c.Dispatch(context.Background(), CommandRequest{Name: "chat", Prompt: "hi"})
	assert.Contains(t, out, "Error running /chat")
	assert.Contains(t, out, "model offline")
}

func TestDispatch_Ruminate(t *testing.T) {
	r := &fakeRuminator{musing: rumination.RuminateResult{Style: "whimsical", Text: " Semicolons dream of periods. "}}
	c, _ := newTestCommands(t, r)

	out := c.Dispatch(context.Background(), CommandRequest{
		Name: "ruminate", GuildID: "g1", ChannelID: "c1", Amount: 5, Style: "random",
	})
	assert.Equal(t, "*💭 Rumi ruminating (whimsical)...*\n\nSemicolons dream of periods.", out)
	assert.Equal(t, rumination.RuminateRequest{GuildID: "g1", ChannelID: "c1", Messages: 5, Style: "random"}, r.musingReq)

	r.musingErr = errors.New("unknown style")
	out = c.Dispatch(context.Background(), CommandRequest{Name: "ruminate", Style: "gloomy"})
	assert.Contains(t, out, "Error running /ruminate")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "ééé...", preview("éééééé", 3))
}
