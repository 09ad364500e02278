package bus

import "time"

// InboundMessage is one platform message observed by a channel adapter.
type InboundMessage struct {
	Channel     string
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
	ReplyToID int64
	// PlatformID is the adapter's own message id.
	PlatformID string
	// ReplyToPlatformID is the adapter's id of the replied-to message. The
	// ingest worker resolves it to a ledger id when ReplyToID is unset.
	ReplyToPlatformID string
	Timestamp         time.Time
}

// OutboundMessage is text a channel adapter should post.
type OutboundMessage struct {
	Channel   string
	ChannelID string
	Content   string
}
