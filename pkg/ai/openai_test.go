package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, failures int32, reply string, seen *capturedRequest) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		if seen != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, seen)
		}
		content, _ := json.Marshal(reply)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(ClientConfig{
		APIKey:             "test-key",
		BaseURL:            baseURL + "/",
		Model:              "test-model",
		SummaryTemperature: 0.3,
		MaxRetries:         2,
		RetryDelay:         time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClient_RequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenAIClient(ClientConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAIClient(ClientConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestSummarize_SendsWindowAndContext(t *testing.T) {
	var seen capturedRequest
	srv, _ := completionServer(t, 0, "  A lively chat about Go.  ", &seen)
	c := newTestClient(t, srv.URL)

	got, err := c.Summarize(context.Background(), []string{"[10:00] alice: hi", "[10:01] bob: hey"}, "last 2 hours", "")
	require.NoError(t, err)
	assert.Equal(t, "A lively chat about Go.", got)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[1].Content, "CURRENT CONVERSATION (last 2 hours)")
	assert.Contains(t, seen.Messages[1].Content, "bob: hey")
	assert.Contains(t, seen.Messages[1].Content, noPreviousContext)
}

func TestSummarize_RetriesServerErrors(t *testing.T) {
	srv, calls := completionServer(t, 2, "recovered", nil)
	c := newTestClient(t, srv.URL)

	got, err := c.Summarize(context.Background(), []string{"x"}, "last 1 hour", "prior")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSummarize_GivesUpAfterRetries(t *testing.T) {
	srv, calls := completionServer(t, 10, "never", nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Summarize(context.Background(), []string{"x"}, "last 1 hour", "")
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestAnalyze_ParsesJSONAndTrimsInput(t *testing.T) {
	var seen capturedRequest
	srv, _ := completionServer(t, 0, "```json\n{\"personality_notes\":\"Helpful.\",\"common_topics\":[\"go\"],\"interaction_style\":\"technical\"}\n```", &seen)
	c := newTestClient(t, srv.URL)

	msgs := make([]string, 80)
	for i := range msgs {
		msgs[i] = fmt.Sprintf("message %d", i)
	}
	got, err := c.Analyze(context.Background(), msgs, "Alice")
	require.NoError(t, err)
	assert.Equal(t, Analysis{Notes: "Helpful.", Topics: []string{"go"}, Style: "technical"}, got)

	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[1].Content, "User: Alice")
	assert.NotContains(t, seen.Messages[1].Content, "message 29\n")
	assert.Contains(t, seen.Messages[1].Content, "message 30")
	assert.Contains(t, seen.Messages[1].Content, "message 79")
}

func TestAnalyze_NoMessagesSkipsModel(t *testing.T) {
	srv, calls := completionServer(t, 0, "unused", nil)
	c := newTestClient(t, srv.URL)

	got, err := c.Analyze(context.Background(), nil, "Alice")
	require.NoError(t, err)
	assert.Equal(t, noMessagesNotes, got.Notes)
	assert.Equal(t, unknownStyle, got.Style)
	assert.Zero(t, calls.Load())
}

func TestParseAnalysis(t *testing.T) {
	got := ParseAnalysis(`{"personality_notes":"Calm.","interaction_style":"casual"}`)
	assert.Equal(t, "Calm.", got.Notes)
	assert.Equal(t, []string{}, got.Topics)
	assert.Equal(t, "casual", got.Style)

	raw := "They seem friendly and curious."
	got = ParseAnalysis(raw)
	assert.Equal(t, raw, got.Notes)
	assert.Empty(t, got.Topics)
	assert.Equal(t, fallbackStyle, got.Style)

	got = ParseAnalysis(`{}`)
	assert.Equal(t, "{}", got.Notes)
}

func TestRespond_SendsProfileAndContext(t *testing.T) {
	var seen capturedRequest
	srv, _ := completionServer(t, 0, " Sounds like the build is finally green. ", &seen)
	c, err := NewOpenAIClient(ClientConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		Model:           "test-model",
		ChatTemperature: 0.9,
	})
	require.NoError(t, err)

	profile := &UserContext{Style: "casual", Topics: []string{"ci", "go"}, Notes: "Likes green builds."}
	got, err := c.Respond(context.Background(), "is it fixed?", profile, []string{"Bob: pushed the fix"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Sounds like the build is finally green.", got)

	assert.InDelta(t, 0.9, seen.Temperature, 0.001)
	require.Len(t, seen.Messages, 2)
	assert.True(t, strings.HasPrefix(seen.Messages[0].Content, Persona))
	user := seen.Messages[1].Content
	assert.Contains(t, user, "Style: casual")
	assert.Contains(t, user, "Common topics: ci, go")
	assert.Contains(t, user, "RECENT CONVERSATION CONTEXT:\nBob: pushed the fix")
	assert.Contains(t, user, "CURRENT MESSAGE: is it fixed?")
}

func TestRespond_WithoutProfileOrContext(t *testing.T) {
	var seen capturedRequest
	srv, _ := completionServer(t, 0, "hi", &seen)
	c := newTestClient(t, srv.URL)

	_, err := c.Respond(context.Background(), "hello", nil, nil, "You are a terse bot.")
	require.NoError(t, err)
	require.Len(t, seen.Messages, 2)
	assert.True(t, strings.HasPrefix(seen.Messages[0].Content, "You are a terse bot."))
	assert.NotContains(t, seen.Messages[1].Content, "USER CONTEXT")
	assert.Contains(t, seen.Messages[1].Content, noRecentContext)
}

func TestRuminate_SendsSparkAndTruncatedContext(t *testing.T) {
	var seen capturedRequest
	srv, _ := completionServer(t, 0, "What if semicolons had feelings?", &seen)
	c := newTestClient(t, srv.URL)

	broader := strings.Repeat("x", broaderContextRunes+50)
	got, err := c.Ruminate(context.Background(), "whimsical", "The secret lives of semicolons", nil, broader, "")
	require.NoError(t, err)
	assert.Equal(t, "What if semicolons had feelings?", got)

	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[0].Content, "Style: whimsical.")
	user := seen.Messages[1].Content
	assert.Contains(t, user, noRecentMessages)
	assert.Contains(t, user, "SPARK OF THOUGHT: The secret lives of semicolons")
	assert.Contains(t, user, strings.Repeat("x", broaderContextRunes)+"\n")
	assert.NotContains(t, user, strings.Repeat("x", broaderContextRunes+1))
}
