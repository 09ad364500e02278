package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/rumi/pkg/bus"
	"github.com/dotsetgreg/rumi/pkg/config"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
	"github.com/dotsetgreg/rumi/pkg/rumination"
)

const (
	sendTimeout    = 10 * time.Second
	commandTimeout = 3 * time.Minute
)

// DiscordChannel records guild messages onto the bus and serves the slash
// commands.
type DiscordChannel struct {
	*BaseChannel
	session  *discordgo.Session
	config   config.DiscordConfig
	commands *Commands
	botID    string
}

func NewDiscordChannel(cfg config.DiscordConfig, mb *bus.MessageBus, commands *Commands) (*DiscordChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		commands:    commands,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	botUser, err := c.session.User("@me")
	if err != nil {
		_ = c.session.Close()
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.botID = botUser.ID
	c.setRunning(true)

	if c.commands != nil {
		if _, err := c.session.ApplicationCommandBulkOverwrite(botUser.ID, c.config.GuildID, SlashCommands()); err != nil {
			logger.ErrorCF("discord", "Failed to register slash commands", map[string]any{
				"guild_id": c.config.GuildID,
				"error":    err.Error(),
			})
		}
	}

	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChannelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	for _, chunk := range splitMessage(msg.Content, DiscordMessageLimit) {
		if err := c.sendChunk(ctx, msg.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	// Direct messages have no guild to record under.
	if m.GuildID == "" {
		return
	}

	msg := inboundFromMessage(s, m.Message, c.botID)
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	if c.HandleMessage(msg) {
		logger.DebugCF("discord", "Recorded message", map[string]any{
			"platform_id": msg.PlatformID,
			"user_id":     msg.UserID,
			"channel_id":  msg.ChannelID,
		})
	}
}

// inboundFromMessage maps a Discord message to the bus shape. Guild and
// channel names come from the session state cache when it has them.
func inboundFromMessage(s *discordgo.Session, m *discordgo.Message, botID string) bus.InboundMessage {
	content := m.Content
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		content = appendLine(content, fmt.Sprintf("[attachment: %s]", a.Filename))
	}

	kind := memory.KindUser
	if m.Author.Bot || m.Author.ID == botID {
		kind = memory.KindBot
	}

	msg := bus.InboundMessage{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		DisplayName: displayName(m.Author, m.Member),
		Content:     content,
		Kind:        kind,
		PlatformID:  m.ID,
		Timestamp:   m.Timestamp,
	}
	if m.MessageReference != nil {
		msg.ReplyToPlatformID = m.MessageReference.MessageID
	}

	if s != nil && s.State != nil {
		if g, err := s.State.Guild(m.GuildID); err == nil {
			msg.GuildName = g.Name
		}
		if ch, err := s.State.Channel(m.ChannelID); err == nil {
			msg.ChannelName = ch.Name
		}
	}
	return msg
}

func displayName(u *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func appendLine(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}

func (c *DiscordChannel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand || c.commands == nil {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		logger.ErrorCF("discord", "Failed to acknowledge interaction", map[string]any{"error": err.Error()})
		return
	}

	req := requestFromInteraction(i)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		reply := c.commands.Dispatch(ctx, req)
		chunks := splitMessage(reply, DiscordMessageLimit)
		if len(chunks) == 0 {
			chunks = []string{"Done."}
		}

		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &chunks[0]}); err != nil {
			logger.ErrorCF("discord", "Failed to send command reply", map[string]any{
				"command": req.Name,
				"error":   err.Error(),
			})
			return
		}
		for _, chunk := range chunks[1:] {
			if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: chunk}); err != nil {
				logger.ErrorCF("discord", "Failed to send command followup", map[string]any{
					"command": req.Name,
					"error":   err.Error(),
				})
				return
			}
		}
	}()
}

// requestFromInteraction reads the command name and options. The target
// user's name is taken from the resolved interaction data.
func requestFromInteraction(i *discordgo.InteractionCreate) CommandRequest {
	data := i.ApplicationCommandData()
	req := CommandRequest{
		Name:      data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	if i.Member != nil && i.Member.User != nil {
		req.UserID = i.Member.User.ID
	} else if i.User != nil {
		req.UserID = i.User.ID
	}
	for _, opt := range data.Options {
		if opt == nil {
			continue
		}
		switch opt.Name {
		case "timeframe":
			req.Timeframe = opt.StringValue()
		case "amount", "context_messages", "messages":
			req.Amount = int(opt.IntValue())
		case "prompt":
			req.Prompt = opt.StringValue()
		case "style":
			req.Style = opt.StringValue()
		case "action":
			req.Action = opt.StringValue()
		case "user":
			if u := opt.UserValue(nil); u != nil {
				req.TargetUserID = u.ID
			}
		}
	}

	if req.TargetUserID != "" {
		req.TargetName = req.TargetUserID
		if data.Resolved != nil {
			u := data.Resolved.Users[req.TargetUserID]
			var member *discordgo.Member
			if data.Resolved.Members != nil {
				member = data.Resolved.Members[req.TargetUserID]
			}
			if name := displayName(u, member); name != "" {
				req.TargetName = name
			}
		}
	}
	return req
}

// SlashCommands returns the application commands registered on Start.
func SlashCommands() []*discordgo.ApplicationCommand {
	minAmount := 1.0
	maxContext := float64(rumination.MaxContextMessages)
	userOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "User to inspect",
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "summary",
			Description: "Get a summary of recent chat activity",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "timeframe",
					Description: "Choose time period or message count",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Hours", Value: "hours"},
						{Name: "Days", Value: "days"},
						{Name: "Messages", Value: "messages"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Number of hours, days or messages",
					MinValue:    &minAmount,
				},
			},
		},
		{
			Name:        "memory",
			Description: "Inspect and manage conversation memory",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "Memory action to perform",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Status", Value: "status"},
						{Name: "Context", Value: "context"},
						{Name: "Analyze User", Value: "analyze"},
						{Name: "Cleanup", Value: "cleanup"},
					},
				},
				userOption,
			},
		},
		{
			Name:        "database",
			Description: "Inspect the memory database",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "What to show",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Tables", Value: "tables"},
						{Name: "Users", Value: "users"},
						{Name: "User Stats", Value: "user_stats"},
						{Name: "User Messages", Value: "user_messages"},
					},
				},
				userOption,
			},
		},
		{
			Name:        "chat",
			Description: "Talk to Rumi with memory of the conversation",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "What to say to Rumi",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "context_messages",
					Description: "Recent messages to include as context",
					MinValue:    &minAmount,
					MaxValue:    maxContext,
				},
			},
		},
		{
			Name:        "ruminate",
			Description: "Let Rumi think out loud about recent conversations",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "Recent messages to draw from",
					MinValue:    &minAmount,
					MaxValue:    maxContext,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "style",
					Description: "Flavor of rumination",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Random", Value: rumination.StyleRandom},
						{Name: "Whimsical", Value: rumination.StyleWhimsical},
						{Name: "Technical", Value: rumination.StyleTechnical},
						{Name: "Philosophical", Value: rumination.StylePhilosophical},
					},
				},
			},
		},
	}
}
