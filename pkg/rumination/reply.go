package rumination

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dotsetgreg/rumi/pkg/ai"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

const (
	replyContextHours      = 24
	DefaultReplyContext    = 20
	DefaultRuminateContext = 10
	// MaxContextMessages caps the recent lines sent with a reply.
	MaxContextMessages = 50
	// historyRunes bounds the summarized history prepended to a reply.
	historyRunes = 500
)

// Rumination styles. StyleRandom picks one of the others per call.
const (
	StyleRandom        = "random"
	StyleWhimsical     = "whimsical"
	StyleTechnical     = "technical"
	StylePhilosophical = "philosophical"
)

var ErrEmptyPrompt = errors.New("prompt is required")

var sparks = map[string][]string{
	StyleWhimsical: {
		"What if gravity worked backwards on Tuesdays?",
		"The philosophical implications of rubber ducks",
		"Why do we park in driveways and drive on parkways?",
		"The secret lives of semicolons",
	},
	StyleTechnical: {
		"The elegance of recursion in nature and code",
		"What if CPUs could dream?",
		"The entropy of a perfectly organized codebase",
		"Database normalization as a metaphor for life",
	},
	StylePhilosophical: {
		"The nature of consciousness in distributed systems",
		"If a tree falls in a forest with no error logging",
		"The ship of Theseus but it's a git repository",
		"Free will vs deterministic algorithms",
	},
}

var concreteStyles = []string{StyleWhimsical, StyleTechnical, StylePhilosophical}

// ReplyRequest asks for an in-voice answer to one user's prompt.
type ReplyRequest struct {
	GuildID         string
	ChannelID       string
	UserID          string
	Prompt          string
	ContextMessages int
}

// Reply answers req.Prompt with the channel's last day of messages, the
// user's stored profile and the channel's summarized history as context.
// All reads finish before the model is called.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	if s.responder == nil {
		return "", fmt.Errorf("reply: responder not configured")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("reply: %w", ErrEmptyPrompt)
	}

	lines, err := s.recentLines(ctx, req.GuildID, req.ChannelID, clampContext(req.ContextMessages, DefaultReplyContext))
	if err != nil {
		return "", fmt.Errorf("reply: %w", err)
	}
	if history := s.broaderContext(ctx, req.GuildID, req.ChannelID); history != "" {
		lines = append([]string{"Earlier in this channel: " + truncateRunes(history, historyRunes)}, lines...)
	}

	var profile *ai.UserContext
	if req.UserID != "" {
		p, err := s.store.GetProfile(ctx, req.UserID, req.GuildID)
		if err != nil {
			logger.WarnCF("rumination", "Profile unavailable for reply", map[string]any{
				"user_id":  req.UserID,
				"guild_id": req.GuildID,
				"error":    err.Error(),
			})
		} else if p != nil && p.Analyzed {
			profile = &ai.UserContext{Style: p.InteractionStyle, Topics: p.CommonTopics, Notes: p.PersonalityNotes}
		}
	}

	out, err := s.responder.Respond(ctx, prompt, profile, lines, s.persona)
	if err != nil {
		return "", fmt.Errorf("reply: %w", err)
	}
	return out, nil
}

// RuminateRequest asks for free-form musing over a channel.
type RuminateRequest struct {
	GuildID   string
	ChannelID string
	Messages  int
	Style     string
}

type RuminateResult struct {
	Style string
	Spark string
	Text  string
}

// Ruminate muses in the given style, seeded by a random spark, the channel's
// newest messages and its week of summaries.
func (s *Service) Ruminate(ctx context.Context, req RuminateRequest) (RuminateResult, error) {
	if s.responder == nil {
		return RuminateResult{}, fmt.Errorf("ruminate: responder not configured")
	}
	style := strings.ToLower(strings.TrimSpace(req.Style))
	if style == "" || style == StyleRandom {
		style = concreteStyles[s.pick(len(concreteStyles))]
	}
	seeds, ok := sparks[style]
	if !ok {
		return RuminateResult{}, fmt.Errorf("ruminate: unknown style %q", req.Style)
	}
	res := RuminateResult{Style: style, Spark: seeds[s.pick(len(seeds))]}

	lines, err := s.recentLines(ctx, req.GuildID, req.ChannelID, clampContext(req.Messages, DefaultRuminateContext))
	if err != nil {
		return res, fmt.Errorf("ruminate: %w", err)
	}
	broader := s.broaderContext(ctx, req.GuildID, req.ChannelID)

	res.Text, err = s.responder.Ruminate(ctx, style, res.Spark, lines, broader, s.persona)
	if err != nil {
		return res, fmt.Errorf("ruminate: %w", err)
	}
	return res, nil
}

func (s *Service) recentLines(ctx context.Context, guildID, channelID string, limit int) ([]string, error) {
	rows, err := s.store.GetRecentContext(ctx, guildID, channelID, replyContextHours, limit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(rows))
	for _, m := range rows {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker(m), m.Content))
	}
	return lines, nil
}

// broaderContext returns the channel's summarized week, or "" when there is
// none or it cannot be read.
func (s *Service) broaderContext(ctx context.Context, guildID, channelID string) string {
	text, err := s.store.GetConversationContext(ctx, guildID, channelID, previousContextDays)
	if err != nil {
		logger.WarnCF("rumination", "Conversation context unavailable", map[string]any{
			"guild_id":   guildID,
			"channel_id": channelID,
			"error":      err.Error(),
		})
		return ""
	}
	if text == memory.NoConversationContext {
		return ""
	}
	return text
}

func clampContext(n, def int) int {
	switch {
	case n <= 0:
		return def
	case n > MaxContextMessages:
		return MaxContextMessages
	default:
		return n
	}
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
