package channels

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_ShortContentIsOneChunk(t *testing.T) {
	got := splitMessage("  hello  ", 0)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected chunks: %q", got)
	}
	if got := splitMessage("", 0); len(got) != 0 {
		t.Fatalf("expected no chunks for empty content, got %q", got)
	}
}

func TestSplitMessage_RespectsLimitWithoutBoundaries(t *testing.T) {
	content := strings.Repeat("a", 5000)
	chunks := splitMessage(content, DiscordMessageLimit)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DiscordMessageLimit {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	if strings.Join(chunks, "") != content {
		t.Fatal("chunks should reassemble the content")
	}
}

func TestSplitMessage_PrefersLineBoundaries(t *testing.T) {
	line := strings.Repeat("word ", 19) + "end"
	content := strings.Repeat(line+"\n", 40)
	chunks := splitMessage(content, 500)
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 500 {
			t.Fatalf("chunk %d exceeds limit", i)
		}
		if !strings.HasSuffix(c, "end") {
			t.Fatalf("chunk %d should end on a line boundary: %q", i, c[len(c)-10:])
		}
	}
}

func TestSplitMessage_CountsRunesNotBytes(t *testing.T) {
	content := strings.Repeat("é", 2500)
	chunks := splitMessage(content, DiscordMessageLimit)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatal("chunk split a multi-byte rune")
		}
	}
}

func TestSplitMessage_ReopensCodeBlocks(t *testing.T) {
	code := strings.Repeat("fmt.Println(x)\n", 60)
	content := "intro\n```go\n" + code + "```\noutro"
	chunks := splitMessage(content, 400)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 400 {
			t.Fatalf("chunk %d exceeds limit", i)
		}
		if strings.Count(c, codeFence)%2 != 0 {
			t.Fatalf("chunk %d leaves a code block open: %q", i, c)
		}
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], "outro") {
		t.Fatal("last chunk should carry the trailing text")
	}
}
