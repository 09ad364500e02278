package memory

import "context"

// Store provides durable persistence for all conversational memory state.
// SQLiteStore is the only implementation; consumers depend on the subset
// they need so tests can substitute fakes.
type Store interface {
	Close() error
	EnsureSchema(ctx context.Context) error

	RegisterActivity(ctx context.Context, a Activity) error
	StoreMessage(ctx context.Context, in MessageInput) (int64, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetUserMessages(ctx context.Context, q UserMessageQuery) ([]UserMessage, error)

	GetRecentContext(ctx context.Context, guildID, channelID string, hours, limit int) ([]ContextMessage, error)
	GetConversationContext(ctx context.Context, guildID, channelID string, daysBack int) (string, error)

	UpsertProfile(ctx context.Context, in ProfileInput) error
	GetProfile(ctx context.Context, userID, guildID string) (*Profile, error)

	StoreSummary(ctx context.Context, in SummaryInput) (int64, error)
	ListSummaries(ctx context.Context, q SummaryQuery) ([]Summary, error)

	Cleanup(ctx context.Context, policy RetentionPolicy) (CleanupReport, error)

	GetUserStats(ctx context.Context, userID, guildID string) (UserStats, error)
	ListUsers(ctx context.Context, guildID string, limit int) ([]UserSummary, error)
	ListTables(ctx context.Context) (TableListing, error)
	GetChannelStatus(ctx context.Context, guildID, channelID string) (ChannelStatus, error)
}

var _ Store = (*SQLiteStore)(nil)

// MessageWriter is the ingest path's view of the store.
type MessageWriter interface {
	StoreMessage(ctx context.Context, in MessageInput) (int64, error)
}
