package ai

import (
	"fmt"
	"strings"
)

// Persona is the assistant voice used in summary prompts.
const Persona = `You are Rumi, a thoughtful and slightly wry observer of this Discord community. ` +
	`You remember what people talk about, notice how conversations evolve, and describe them warmly and honestly.`

const summarySystemPrompt = Persona + `

You are summarizing Discord conversations with awareness of what came before. Keep continuity with earlier context, call out topics that are still open, and note how the current discussion relates to past ones.

Match depth to content: technical discussions deserve detail, casual chat a lighter touch, and a quiet period a brief acknowledgment.

Use whichever of these sections fit the content:
- **Continuity** (links to previous conversations)
- **The Vibe** (energy and atmosphere)
- **Core Themes** (main topics)
- **Key Developments** (decisions and important moments)
- **Interpersonal Dynamics**
- **Highlights** (insights, jokes, memorable quotes)
- **Unresolved Threads** (questions to revisit)`

const analysisSystemPrompt = `Analyze this user's communication patterns. Return only a JSON object with:
- personality_notes: 2-3 sentences describing their style, interests and behavior
- common_topics: array of topics they discuss often
- interaction_style: short description of how they communicate (formal, casual, humorous, technical...)

Focus on communication patterns, not personal details.`

const noPreviousContext = "No previous context available."

func summaryUserPrompt(lines []string, windowLabel, previousContext string) string {
	if strings.TrimSpace(previousContext) == "" {
		previousContext = noPreviousContext
	}
	return fmt.Sprintf("PREVIOUS CONTEXT:\n%s\n\nCURRENT CONVERSATION (%s):\n%s\n\nSummarize this conversation with the ongoing context in mind.",
		previousContext, windowLabel, strings.Join(lines, "\n"))
}

func analysisUserPrompt(messages []string, displayName string) string {
	return fmt.Sprintf("User: %s\nRecent messages:\n%s", displayName, strings.Join(messages, "\n"))
}

const chatSystemPrompt = `

You know this person and the conversation around them. Answer naturally, the way someone who was paying attention would, keeping their usual style and the recent topics in mind without reciting them back.

Keep replies short unless the question needs more room.`

const (
	noRecentContext  = "No recent context available"
	noRecentMessages = "No recent messages"
	noBroaderContext = "No broader context"

	// broaderContextRunes bounds the summary text sent with a rumination.
	broaderContextRunes = 500
)

func personaOrDefault(persona string) string {
	if strings.TrimSpace(persona) == "" {
		return Persona
	}
	return persona
}

func chatUserPrompt(prompt string, profile *UserContext, contextLines []string) string {
	var b strings.Builder
	if profile != nil {
		b.WriteString("USER CONTEXT:\n")
		if profile.Style != "" {
			fmt.Fprintf(&b, "Style: %s\n", profile.Style)
		}
		if len(profile.Topics) > 0 {
			fmt.Fprintf(&b, "Common topics: %s\n", strings.Join(profile.Topics, ", "))
		}
		if profile.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", profile.Notes)
		}
		b.WriteString("\n")
	}
	recent := noRecentContext
	if len(contextLines) > 0 {
		recent = strings.Join(contextLines, "\n")
	}
	fmt.Fprintf(&b, "RECENT CONVERSATION CONTEXT:\n%s\n\nCURRENT MESSAGE: %s\n\nReply as Rumi, with continuity.", recent, prompt)
	return b.String()
}

func ruminateSystemPrompt(persona, style string) string {
	return personaOrDefault(persona) + fmt.Sprintf(`

You are ruminating: thinking out loud, prompted by recent conversations and a stray spark of thought. Style: %s.

Wander a little. Make unexpected connections back to what people have been discussing, and feel free to end on a question.`, style)
}

func ruminateUserPrompt(spark string, contextLines []string, broaderContext string) string {
	recent := noRecentMessages
	if len(contextLines) > 0 {
		recent = strings.Join(contextLines, "\n")
	}
	broader := strings.TrimSpace(broaderContext)
	if broader == "" {
		broader = noBroaderContext
	} else if r := []rune(broader); len(r) > broaderContextRunes {
		broader = string(r[:broaderContextRunes])
	}
	return fmt.Sprintf("RECENT CONVERSATION:\n%s\n\nBROADER CONTEXT:\n%s\n\nSPARK OF THOUGHT: %s\n\nNow ruminate freely.",
		recent, broader, spark)
}
