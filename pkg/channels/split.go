package channels

import (
	"strings"
	"unicode"
)

// DiscordMessageLimit is the maximum characters in one Discord message.
const DiscordMessageLimit = 2000

const codeFence = "```"

// splitMessage breaks content into chunks of at most limit runes, preferring
// newline and then space boundaries in the second half of each chunk. A code
// block left open at a boundary is closed and reopened in the next chunk.
func splitMessage(content string, limit int) []string {
	if limit <= 0 {
		limit = DiscordMessageLimit
	}
	// Room for closing an open fence.
	window := limit - len("\n"+codeFence)
	if window < 1 {
		window = limit
	}

	var chunks []string
	rest := []rune(strings.TrimSpace(content))
	for len(rest) > 0 {
		if len(rest) <= limit {
			chunks = append(chunks, string(rest))
			break
		}

		cut := splitPoint(rest[:window])
		chunk := strings.TrimRightFunc(string(rest[:cut]), unicode.IsSpace)
		next := strings.TrimLeftFunc(string(rest[cut:]), unicode.IsSpace)

		if strings.Count(chunk, codeFence)%2 == 1 {
			chunk += "\n" + codeFence
			next = codeFence + "\n" + next
		}
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = []rune(next)
	}
	return chunks
}

func splitPoint(window []rune) int {
	floor := len(window) / 2
	for i := len(window) - 1; i >= floor; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	for i := len(window) - 1; i >= floor; i-- {
		if window[i] == ' ' || window[i] == '\t' {
			return i
		}
	}
	return len(window)
}
