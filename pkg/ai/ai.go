package ai

import (
	"context"
	"encoding/json"
	"strings"
)

// Summarizer turns a window of formatted chat lines into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, lines []string, windowLabel, previousContext string) (string, error)
}

// Analyzer derives a behavioral profile from a user's messages.
type Analyzer interface {
	Analyze(ctx context.Context, messages []string, displayName string) (Analysis, error)
}

// Responder speaks in the assistant's voice. An empty persona falls back
// to Persona.
type Responder interface {
	Respond(ctx context.Context, prompt string, profile *UserContext, contextLines []string, persona string) (string, error)
	Ruminate(ctx context.Context, style, spark string, contextLines []string, broaderContext, persona string) (string, error)
}

// UserContext is what is known about the person being answered.
type UserContext struct {
	Style  string
	Topics []string
	Notes  string
}

// Analysis is the structured result of a personality analysis.
type Analysis struct {
	Notes  string   `json:"personality_notes"`
	Topics []string `json:"common_topics"`
	Style  string   `json:"interaction_style"`
}

const (
	noMessagesNotes = "No messages to analyze"
	unknownStyle    = "Unknown"
	fallbackStyle   = "Analysis available in notes"
)

// ParseAnalysis decodes a model response. Responses that are not the
// expected JSON object degrade to the raw text as notes.
func ParseAnalysis(raw string) Analysis {
	body := stripCodeFence(raw)
	var out Analysis
	if err := json.Unmarshal([]byte(body), &out); err != nil || (out.Notes == "" && out.Style == "" && len(out.Topics) == 0) {
		return Analysis{Notes: strings.TrimSpace(raw), Topics: []string{}, Style: fallbackStyle}
	}
	if out.Topics == nil {
		out.Topics = []string{}
	}
	return out
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
