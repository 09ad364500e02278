package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dotsetgreg/rumi/pkg/memory"
	"github.com/dotsetgreg/rumi/pkg/rumination"
)

const (
	userMessagesFetch = 10
	userMessagesShown = 5
	tablesShown       = 10
	previewRunes      = 100
	notesRunes        = 200
	dayLayout         = "2006-01-02"
	minuteLayout      = "2006-01-02 15:04"
)

// MemoryReader is the store surface the slash commands use.
type MemoryReader interface {
	GetChannelStatus(ctx context.Context, guildID, channelID string) (memory.ChannelStatus, error)
	GetConversationContext(ctx context.Context, guildID, channelID string, daysBack int) (string, error)
	Cleanup(ctx context.Context, policy memory.RetentionPolicy) (memory.CleanupReport, error)
	ListTables(ctx context.Context) (memory.TableListing, error)
	ListUsers(ctx context.Context, guildID string, limit int) ([]memory.UserSummary, error)
	GetUserStats(ctx context.Context, userID, guildID string) (memory.UserStats, error)
	GetUserMessages(ctx context.Context, q memory.UserMessageQuery) ([]memory.UserMessage, error)
	GetProfile(ctx context.Context, userID, guildID string) (*memory.Profile, error)
}

// Ruminator runs the model-backed commands.
type Ruminator interface {
	SummarizeWindow(ctx context.Context, guildID, channelID string, w rumination.Window) (rumination.SummaryResult, error)
	AnalyzeUser(ctx context.Context, userID, guildID, displayName string) (rumination.AnalysisResult, error)
	Reply(ctx context.Context, req rumination.ReplyRequest) (string, error)
	Ruminate(ctx context.Context, req rumination.RuminateRequest) (rumination.RuminateResult, error)
}

// CommandRequest is a platform-neutral slash command invocation.
type CommandRequest struct {
	Name      string
	Action    string
	GuildID   string
	ChannelID string
	// UserID is the invoking user.
	UserID string

	Timeframe string
	Amount    int

	TargetUserID string
	TargetName   string

	Prompt string
	Style  string
}

// Commands renders the slash commands.
type Commands struct {
	store  MemoryReader
	rumi   Ruminator
	policy memory.RetentionPolicy
	model  string
	now    func() time.Time
}

func NewCommands(store MemoryReader, rumi Ruminator, policy memory.RetentionPolicy, model string) *Commands {
	return &Commands{store: store, rumi: rumi, policy: policy, model: model, now: time.Now}
}

// Dispatch runs req and returns the reply text. Failures are rendered into
// the reply so the caller always has something to post.
func (c *Commands) Dispatch(ctx context.Context, req CommandRequest) string {
	var (
		out string
		err error
	)
	switch req.Name {
	case "summary":
		out, err = c.summary(ctx, req)
	case "memory":
		out, err = c.memory(ctx, req)
	case "database":
		out, err = c.database(ctx, req)
	case "chat":
		out, err = c.chat(ctx, req)
	case "ruminate":
		out, err = c.ruminate(ctx, req)
	default:
		return fmt.Sprintf("Unknown command %q.", req.Name)
	}
	if err != nil {
		return fmt.Sprintf("Error running /%s %s: %v", req.Name, req.Action, err)
	}
	return out
}

func (c *Commands) summary(ctx context.Context, req CommandRequest) (string, error) {
	w, err := rumination.ParseWindow(req.Timeframe, req.Amount)
	if err != nil {
		return "", err
	}
	res, err := c.rumi.SummarizeWindow(ctx, req.GuildID, req.ChannelID, w)
	if errors.Is(err, rumination.ErrNoMessages) {
		return fmt.Sprintf("No messages found in the %s.", w.Label()), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📊 **Summary Stats**\n")
	fmt.Fprintf(&b, "• Period: %s\n", res.Label)
	fmt.Fprintf(&b, "• Messages analyzed: %d\n", res.MessageCount)
	fmt.Fprintf(&b, "• Total words: ~%s\n", humanize.Comma(int64(res.TotalWords)))
	fmt.Fprintf(&b, "• Summary length: %d words\n\n---\n\n", res.SummaryWords)
	b.WriteString(res.Summary)
	return b.String(), nil
}

func (c *Commands) chat(ctx context.Context, req CommandRequest) (string, error) {
	out, err := c.rumi.Reply(ctx, rumination.ReplyRequest{
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		UserID:          req.UserID,
		Prompt:          req.Prompt,
		ContextMessages: req.Amount,
	})
	if errors.Is(err, rumination.ErrEmptyPrompt) {
		return "Give me something to respond to.", nil
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Commands) ruminate(ctx context.Context, req CommandRequest) (string, error) {
	res, err := c.rumi.Ruminate(ctx, rumination.RuminateRequest{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Messages:  req.Amount,
		Style:     req.Style,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("*💭 Rumi ruminating (%s)...*\n\n%s", res.Style, strings.TrimSpace(res.Text)), nil
}

func (c *Commands) memory(ctx context.Context, req CommandRequest) (string, error) {
	switch req.Action {
	case "", "status":
		st, err := c.store.GetChannelStatus(ctx, req.GuildID, req.ChannelID)
		if err != nil {
			return "", err
		}
		last := "never"
		if !st.LastSummaryAt.IsZero() {
			last = humanize.RelTime(st.LastSummaryAt, c.now(), "ago", "from now")
		}
		return fmt.Sprintf(`🧠 **Rumi's Memory Status**

**Current Channel:**
• Recent messages (24h): %d
• Stored summaries: %d
• Last summary: %s
• Context depth: %s words

**Memory Health:**
• Database: ✅ Active
• AI Client: ✅ Connected (%s)
• Retention: %d days raw, %d days summaries

Use `+"`/memory context`"+` to see conversation history or `+"`/memory analyze @user`"+` to analyze someone's communication patterns.`,
			st.RecentMessages, st.Summaries, last, humanize.Comma(int64(st.ContextWordCount)),
			c.model, c.policy.RawDays, c.policy.SummaryDays), nil

	case "context":
		text, err := c.store.GetConversationContext(ctx, req.GuildID, req.ChannelID, 0)
		if err != nil {
			return "", err
		}
		return "🧠 **Conversation Context**\n\n" + text, nil

	case "analyze":
		if req.TargetUserID == "" {
			return "Pick a user to analyze.", nil
		}
		res, err := c.rumi.AnalyzeUser(ctx, req.TargetUserID, req.GuildID, req.TargetName)
		if errors.Is(err, rumination.ErrNoMessages) {
			return fmt.Sprintf("No recent messages found for %s.", req.TargetName), nil
		}
		if err != nil {
			return "", err
		}
		topics := "None identified"
		if len(res.Topics) > 0 {
			topics = strings.Join(res.Topics, ", ")
		}
		return fmt.Sprintf(`🔍 **User Analysis: %s**

**Communication Style:** %s

**Common Topics:** %s

**Personality Notes:**
%s

**Analysis based on %d recent messages**

*This analysis has been saved to my memory for future interactions.*`,
			req.TargetName, res.Style, topics, res.Notes, res.MessageCount), nil

	case "cleanup":
		report, err := c.store.Cleanup(ctx, c.policy)
		out := fmt.Sprintf("🧹 **Memory Cleanup Complete**\n\n• Messages removed: %d\n• Partition rows removed: %d across %d tables\n• Summaries removed: %d",
			report.MessagesDeleted, report.PartitionRowsDeleted, report.PartitionsSwept, report.SummariesDeleted)
		if err != nil {
			out += fmt.Sprintf("\n• Failed tables: %s", strings.Join(report.FailedTables, ", "))
		}
		return out, nil

	default:
		return "", fmt.Errorf("unknown action %q", req.Action)
	}
}

func (c *Commands) database(ctx context.Context, req CommandRequest) (string, error) {
	switch req.Action {
	case "", "tables":
		listing, err := c.store.ListTables(ctx)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "🗃️ **Database Tables**\n\n**Core Tables (%d):**\n", len(listing.Core))
		for _, t := range listing.Core {
			fmt.Fprintf(&b, "• `%s`\n", t)
		}
		fmt.Fprintf(&b, "\n**User Message Tables (%d):**\n", len(listing.Partitions))
		for i, t := range listing.Partitions {
			if i == tablesShown {
				fmt.Fprintf(&b, "• ... and %d more user tables\n", len(listing.Partitions)-tablesShown)
				break
			}
			fmt.Fprintf(&b, "• `%s`\n", t)
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "users":
		users, err := c.store.ListUsers(ctx, req.GuildID, 0)
		if err != nil {
			return "", err
		}
		if len(users) == 0 {
			return "No users found in database.", nil
		}
		lines := []string{"👥 **Users in Database**", ""}
		for _, u := range users {
			line := fmt.Sprintf("• **%s** (@%s)", u.DisplayName, u.Username)
			if req.GuildID != "" {
				line += fmt.Sprintf(" - %d messages in this guild", u.GuildMessages)
			} else {
				line += fmt.Sprintf(" - %d total messages", u.TotalMessages)
			}
			line += fmt.Sprintf(" (last seen: %s)", u.LastSeen.UTC().Format(dayLayout))
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), nil

	case "user_stats":
		if req.TargetUserID == "" {
			return "Pick a user.", nil
		}
		return c.userStats(ctx, req)

	case "user_messages":
		if req.TargetUserID == "" {
			return "Pick a user.", nil
		}
		msgs, err := c.store.GetUserMessages(ctx, memory.UserMessageQuery{
			UserID:  req.TargetUserID,
			GuildID: req.GuildID,
			Limit:   userMessagesFetch,
		})
		if err != nil {
			return "", err
		}
		if len(msgs) == 0 {
			return fmt.Sprintf("No messages found for %s in their dedicated table.", req.TargetName), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "💬 **Recent Messages from %s's Table**\n\n", req.TargetName)
		shown := msgs
		if len(shown) > userMessagesShown {
			shown = shown[len(shown)-userMessagesShown:]
		}
		for _, m := range shown {
			fmt.Fprintf(&b, "**%s** (%d words): %s\n\n", m.Timestamp.UTC().Format(minuteLayout), m.WordCount, preview(m.Content, previewRunes))
		}
		fmt.Fprintf(&b, "*Showing %d of %d recent messages*", len(shown), len(msgs))
		return b.String(), nil

	default:
		return "", fmt.Errorf("unknown action %q", req.Action)
	}
}

func (c *Commands) userStats(ctx context.Context, req CommandRequest) (string, error) {
	st, err := c.store.GetUserStats(ctx, req.TargetUserID, req.GuildID)
	if err != nil {
		return "", err
	}
	if !st.Known {
		return fmt.Sprintf("No data found for %s in database.", req.TargetName), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **User Statistics: %s**\n\n", req.TargetName)
	fmt.Fprintf(&b, "**Basic Info:**\n• Username: @%s\n• Display Name: %s\n• User ID: `%s`\n\n", st.Username, st.DisplayName, st.UserID)
	fmt.Fprintf(&b, "**Activity:**\n• Total Messages: %d\n• First Seen: %s\n• Last Seen: %s",
		st.TotalMessages, st.FirstSeen.UTC().Format(minuteLayout), st.LastSeen.UTC().Format(minuteLayout))
	if req.GuildID != "" && st.GuildMessageCount > 0 {
		fmt.Fprintf(&b, "\n\n**This Guild:**\n• Messages: %d\n• Avg Words/Message: %.1f\n• First Message: %s\n• Last Message: %s",
			st.GuildMessageCount, st.AvgWordCount,
			st.FirstMessage.UTC().Format(minuteLayout), st.LastMessage.UTC().Format(minuteLayout))
	}
	table := "❌"
	if st.HasPartition {
		table = "✅ `" + st.PartitionTable + "`"
	}
	fmt.Fprintf(&b, "\n\n**Database:**\n• Has Dedicated Table: %s", table)

	profile, err := c.store.GetProfile(ctx, req.TargetUserID, req.GuildID)
	if err != nil {
		return "", err
	}
	if profile != nil && profile.Analyzed {
		fmt.Fprintf(&b, "\n\n**Profile Analysis:**\n• Style: %s\n• Topics: %s\n• Notes: %s",
			profile.InteractionStyle, strings.Join(profile.CommonTopics, ", "), preview(profile.PersonalityNotes, notesRunes))
	}
	return b.String(), nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
