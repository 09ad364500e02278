package memory

import "time"

// Message kinds recorded in the ledger.
const (
	KindUser = "user"
	KindBot  = "bot"
)

// Guild is a registered server.
type Guild struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Channel is a registered channel within a guild.
type Channel struct {
	ID        string
	GuildID   string
	Name      string
	Kind      string
	CreatedAt time.Time
}

// User is the cross-guild user registry entry.
type User struct {
	ID            string
	Username      string
	DisplayName   string
	FirstSeen     time.Time
	LastSeen      time.Time
	TotalMessages int
}

// Activity describes one observed message for the entity registrar.
type Activity struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	ChannelKind string
	UserID      string
	Username    string
	DisplayName string
	At          time.Time
}

// MessageInput is one platform message to persist.
type MessageInput struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string
	DisplayName string
	Content     string
	Kind        string
	// ReplyToID is the ledger id of the replied-to message, 0 for none.
	// Ids that are not in the ledger are stored as no reply.
	ReplyToID int64
	// Timestamp defaults to the store clock when zero.
	Timestamp time.Time
}

// Message is a ledger row.
type Message struct {
	ID        int64
	UserID    string
	GuildID   string
	ChannelID string
	Content   string
	Timestamp time.Time
	Kind      string
	ReplyToID int64
	EditedAt  time.Time
	WordCount int
}

// UserMessage is a row from a user's partition table.
type UserMessage struct {
	ID        int64
	MessageID int64
	GuildID   string
	ChannelID string
	Content   string
	Timestamp time.Time
	WordCount int
	ReplyToID int64
}

// UserMessageQuery selects from a user's partition. Empty GuildID and zero
// Since disable the respective filters; only rows strictly after Since match.
type UserMessageQuery struct {
	UserID  string
	GuildID string
	Limit   int
	Since   time.Time
}

// ContextMessage is a ledger row joined with its author.
type ContextMessage struct {
	UserID      string
	Username    string
	DisplayName string
	Content     string
	Timestamp   time.Time
	Kind        string
	WordCount   int
	ReplyToID   int64
}

// ProfileInput is the result of one personality analysis.
type ProfileInput struct {
	UserID  string
	GuildID string
	Notes   string
	Topics  []string
	Style   string
}

// Profile combines the user registry entry with the per-guild analysis.
// Analyzed is false when no analysis has been stored for the guild yet.
type Profile struct {
	UserID            string
	GuildID           string
	Username          string
	DisplayName       string
	TotalMessages     int
	LastSeen          time.Time
	Analyzed          bool
	PersonalityNotes  string
	CommonTopics      []string
	InteractionStyle  string
	GuildMessageCount int
	AnalysisDate      time.Time
}

// SummaryInput is a generated summary and the exact range it covers.
type SummaryInput struct {
	GuildID      string
	ChannelID    string
	Summary      string
	MessageCount int
	Start        time.Time
	End          time.Time
	// CreatedAt defaults to the store clock when zero.
	CreatedAt time.Time
}

// Summary is a stored context summary.
type Summary struct {
	ID           int64
	GuildID      string
	ChannelID    string
	Summary      string
	MessageCount int
	Start        time.Time
	End          time.Time
	CreatedAt    time.Time
}

// RetentionPolicy sets the raw-data and summary horizons in days.
type RetentionPolicy struct {
	RawDays     int
	SummaryDays int
}

// DefaultRetention keeps raw messages for 30 days and summaries for 90.
var DefaultRetention = RetentionPolicy{RawDays: 30, SummaryDays: 90}

func (p RetentionPolicy) withDefaults() RetentionPolicy {
	if p.RawDays <= 0 {
		p.RawDays = DefaultRetention.RawDays
	}
	if p.SummaryDays <= 0 {
		p.SummaryDays = DefaultRetention.SummaryDays
	}
	return p
}

// CleanupReport summarizes one retention sweep.
type CleanupReport struct {
	RunAt                time.Time
	RawCutoff            time.Time
	SummaryCutoff        time.Time
	MessagesDeleted      int64
	PartitionRowsDeleted int64
	PartitionsSwept      int
	SummariesDeleted     int64
	FailedTables         []string
}

// UserStats is the per-user breakdown shown by introspection surfaces.
type UserStats struct {
	UserID            string
	Known             bool
	Username          string
	DisplayName       string
	TotalMessages     int
	FirstSeen         time.Time
	LastSeen          time.Time
	GuildMessageCount int
	AvgWordCount      float64
	FirstMessage      time.Time
	LastMessage       time.Time
	HasPartition      bool
	PartitionTable    string
}

// UserSummary is one row of ListUsers.
type UserSummary struct {
	UserID        string
	Username      string
	DisplayName   string
	TotalMessages int
	LastSeen      time.Time
	// GuildMessages is only populated when listing for a guild.
	GuildMessages int
}

// TableListing splits the database tables into fixed and partition tables.
type TableListing struct {
	Core       []string
	Partitions []string
}

// ChannelStatus is the memory status of one channel.
type ChannelStatus struct {
	GuildID          string
	ChannelID        string
	RecentMessages   int
	Summaries        int
	LastSummaryAt    time.Time
	ContextWordCount int
}
