package rumination

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/dotsetgreg/rumi/pkg/ai"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

const (
	analysisMessageLimit = 200
	analysisLookback     = 168 * time.Hour
	previousContextDays  = 7

	// maxWindowMessages caps how many ledger rows a time window reads.
	maxWindowMessages = 2000
	// lastNLookbackHours bounds a last-N window to the raw retention horizon.
	lastNLookbackHours = 30 * 24
)

// ErrNoMessages reports an empty window or an unknown user history.
var ErrNoMessages = errors.New("no messages found")

// Store is the subset of memory.Store the service reads and writes.
type Store interface {
	GetRecentContext(ctx context.Context, guildID, channelID string, hours, limit int) ([]memory.ContextMessage, error)
	GetConversationContext(ctx context.Context, guildID, channelID string, daysBack int) (string, error)
	StoreSummary(ctx context.Context, in memory.SummaryInput) (int64, error)
	GetUserMessages(ctx context.Context, q memory.UserMessageQuery) ([]memory.UserMessage, error)
	UpsertProfile(ctx context.Context, in memory.ProfileInput) error
	GetProfile(ctx context.Context, userID, guildID string) (*memory.Profile, error)
}

// Service runs the language-model steps that feed the summary and profile
// stores. Model calls never happen inside a store transaction.
type Service struct {
	store      Store
	summarizer ai.Summarizer
	analyzer   ai.Analyzer
	responder  ai.Responder
	persona    string
	now        func() time.Time
	pick       func(n int) int
}

func NewService(store Store, summarizer ai.Summarizer, analyzer ai.Analyzer) *Service {
	return &Service{
		store:      store,
		summarizer: summarizer,
		analyzer:   analyzer,
		now:        time.Now,
		pick:       rand.Intn,
	}
}

// WithResponder enables Reply and Ruminate. An empty persona uses
// ai.Persona.
func (s *Service) WithResponder(r ai.Responder, persona string) *Service {
	s.responder = r
	s.persona = persona
	return s
}

// SummaryResult describes one stored window summary.
type SummaryResult struct {
	SummaryID    int64
	Window       Window
	Label        string
	Summary      string
	MessageCount int
	TotalWords   int
	SummaryWords int
	Start        time.Time
	End          time.Time
}

// SummarizeWindow summarizes the channel's user messages in w and stores the
// summary with the exact first and last message timestamps. Nothing is stored
// when the summarizer fails.
func (s *Service) SummarizeWindow(ctx context.Context, guildID, channelID string, w Window) (SummaryResult, error) {
	if s.summarizer == nil {
		return SummaryResult{}, fmt.Errorf("summarize window: summarizer not configured")
	}
	w = w.normalize()
	res := SummaryResult{Window: w, Label: w.Label()}

	msgs, err := s.windowMessages(ctx, guildID, channelID, w)
	if err != nil {
		return res, fmt.Errorf("summarize window: %w", err)
	}
	if len(msgs) == 0 {
		return res, fmt.Errorf("summarize window: %w in the %s", ErrNoMessages, res.Label)
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", speaker(m), m.Content))
		res.TotalWords += m.WordCount
	}

	previous, err := s.store.GetConversationContext(ctx, guildID, channelID, previousContextDays)
	if err != nil {
		logger.WarnCF("rumination", "Previous context unavailable", map[string]any{
			"guild_id":   guildID,
			"channel_id": channelID,
			"error":      err.Error(),
		})
		previous = ""
	}
	if previous == memory.NoConversationContext {
		previous = ""
	}

	summary, err := s.summarizer.Summarize(ctx, lines, res.Label, previous)
	if err != nil {
		return res, fmt.Errorf("summarize window: %w", err)
	}

	res.Summary = summary
	res.MessageCount = len(msgs)
	res.SummaryWords = memory.WordCount(summary)
	res.Start = msgs[0].Timestamp
	res.End = msgs[len(msgs)-1].Timestamp

	id, err := s.store.StoreSummary(ctx, memory.SummaryInput{
		GuildID:      guildID,
		ChannelID:    channelID,
		Summary:      summary,
		MessageCount: res.MessageCount,
		Start:        res.Start,
		End:          res.End,
	})
	if err != nil {
		return res, fmt.Errorf("summarize window: %w", err)
	}
	res.SummaryID = id

	logger.InfoCF("rumination", "Stored window summary", map[string]any{
		"guild_id":   guildID,
		"channel_id": channelID,
		"window":     res.Label,
		"messages":   res.MessageCount,
		"summary_id": id,
	})
	return res, nil
}

func (s *Service) windowMessages(ctx context.Context, guildID, channelID string, w Window) ([]memory.ContextMessage, error) {
	var (
		rows []memory.ContextMessage
		err  error
	)
	switch w.Kind {
	case WindowMessages:
		rows, err = s.store.GetRecentContext(ctx, guildID, channelID, lastNLookbackHours, w.Amount)
	default:
		rows, err = s.store.GetRecentContext(ctx, guildID, channelID, int(w.Duration()/time.Hour), maxWindowMessages)
	}
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, m := range rows {
		if m.Kind == memory.KindBot || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func speaker(m memory.ContextMessage) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Username != "" {
		return m.Username
	}
	return m.UserID
}

// AnalysisResult is a stored profile analysis.
type AnalysisResult struct {
	ai.Analysis
	MessageCount int
}

// AnalyzeUser analyzes the user's last week of messages in the guild and
// stores the resulting profile.
func (s *Service) AnalyzeUser(ctx context.Context, userID, guildID, displayName string) (AnalysisResult, error) {
	if s.analyzer == nil {
		return AnalysisResult{}, fmt.Errorf("analyze user: analyzer not configured")
	}
	msgs, err := s.store.GetUserMessages(ctx, memory.UserMessageQuery{
		UserID:  userID,
		GuildID: guildID,
		Limit:   analysisMessageLimit,
		Since:   s.now().Add(-analysisLookback),
	})
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze user: %w", err)
	}

	contents := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) != "" {
			contents = append(contents, m.Content)
		}
	}
	if len(contents) == 0 {
		return AnalysisResult{}, fmt.Errorf("analyze user: %w for %s", ErrNoMessages, displayName)
	}

	analysis, err := s.analyzer.Analyze(ctx, contents, displayName)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze user: %w", err)
	}

	if err := s.store.UpsertProfile(ctx, memory.ProfileInput{
		UserID:  userID,
		GuildID: guildID,
		Notes:   analysis.Notes,
		Topics:  analysis.Topics,
		Style:   analysis.Style,
	}); err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze user: %w", err)
	}

	logger.InfoCF("rumination", "Stored user analysis", map[string]any{
		"user_id":  userID,
		"guild_id": guildID,
		"messages": len(contents),
	})
	return AnalysisResult{Analysis: analysis, MessageCount: len(contents)}, nil
}
