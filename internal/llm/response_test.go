package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

func TestParseAnalysisLenientExtraction(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain", `{"urgency":2,"importance":3,"confidence":0.5}`},
		{"think block", "<think>the user wants JSON {not this}</think>\n{\"urgency\":2,\"importance\":3,\"confidence\":0.5}"},
		{"code fence", "```json\n{\"urgency\":2,\"importance\":3,\"confidence\":0.5}\n```"},
		{"surrounding prose", `Sure! Here it is: {"urgency":2,"importance":3,"confidence":0.5} Hope that helps.`},
		{"trailing commas", `{"urgency":2,"importance":3,"confidence":0.5,"bullets":["a",],}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.content, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, a.Urgency)
			assert.Equal(t, 3, a.Importance)
		})
	}
}

func TestParseAnalysisClampsAndCaps(t *testing.T) {
	a, err := ParseAnalysis(`{
		"urgency": 9, "importance": -2, "confidence": 1.7, "priority": 100,
		"bullets": ["one", " ", "two", "three", "four"],
		"key_actions": ["a", "b", "c", "d"],
		"labels": ["Work", "work", "travel", "Uncategorized", "finance", "finance"]
	}`, []string{"work", "finance", "travel"})
	require.NoError(t, err)

	assert.Equal(t, 5, a.Urgency)
	assert.Equal(t, 0, a.Importance)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Equal(t, []string{"one", "two", "three"}, a.Bullets)
	assert.Equal(t, []string{"a", "b", "c"}, a.KeyActions)
	assert.Equal(t, []string{"work", "travel", "uncategorized"}, a.Labels)
}

func TestParseAnalysisRoundsFractionalLevels(t *testing.T) {
	a, err := ParseAnalysis(`{"urgency":2.6,"importance":3.4,"confidence":0}`, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Urgency)
	assert.Equal(t, 3, a.Importance)
}

func TestParseAnalysisRejectsInvalidReplies(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no object", "I cannot help with that."},
		{"wrong type", `{"urgency":"high","importance":3,"confidence":0.5}`},
		{"missing confidence", `{"urgency":1,"importance":3}`},
		{"bullets not a list", `{"urgency":1,"importance":3,"confidence":0.5,"bullets":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnalysis(tt.content, nil)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestMemoryBlock(t *testing.T) {
	items := []model.MemoryItem{
		{Kind: "vip", Key: "boss", Value: "alice@example.org"},
		{Kind: "vip", Key: "cfo", Value: "bob@example.org"},
		{Kind: "preference", Key: "newsletters", Value: "low\npriority"},
	}

	assert.Equal(t,
		"[VIP]\n- boss: alice@example.org\n- cfo: bob@example.org\n[PREFERENCE]\n- newsletters: low priority",
		MemoryBlock(items, maxMemoryChars))
	assert.Equal(t, "[VIP]\n- boss: alice@example.org", MemoryBlock(items, 40))
	assert.Empty(t, MemoryBlock(nil, maxMemoryChars))
}

func TestTruncateBody(t *testing.T) {
	got, truncated := TruncateBody("short", 10)
	assert.Equal(t, "short", got)
	assert.False(t, truncated)

	body := strings.Repeat("abcd ", 10)
	got, truncated = TruncateBody(body, 22)
	assert.True(t, truncated)
	assert.Equal(t, "abcd abcd abcd abcd", got)

	got, again := TruncateBody(body, 22)
	assert.Equal(t, "abcd abcd abcd abcd", got, "truncation is deterministic")
	assert.True(t, again)

	got, truncated = TruncateBody("ééééééé", 3)
	assert.True(t, truncated)
	assert.Equal(t, "ééé", got)
}

func TestUserPrompt(t *testing.T) {
	p := UserPrompt([]string{"work"}, Request{
		Subject:   "Hello",
		FromName:  "Alice",
		FromEmail: "alice@example.org",
		Date:      time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC),
	}, "body text", true)

	assert.Contains(t, p, "From: Alice <alice@example.org>")
	assert.Contains(t, p, "Date: 2024-09-01 08:30 UTC")
	assert.Contains(t, p, "Body:\nbody text\n>>>")
	assert.Contains(t, p, "clipped")
}

func TestBreakerTransitions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	assert.True(t, b.allow())
	b.record(true)
	assert.True(t, b.allow())
	b.record(false)
	assert.True(t, b.allow(), "a success resets the failure run")
	b.record(true)
	assert.True(t, b.allow())
	b.record(true)
	assert.False(t, b.allow())

	now = now.Add(time.Minute)
	assert.True(t, b.allow(), "probe after cooldown")
	assert.False(t, b.allow(), "only one probe at a time")
	b.record(true)
	assert.False(t, b.allow(), "failed probe reopens")

	now = now.Add(time.Minute)
	assert.True(t, b.allow())
	b.record(false)
	assert.True(t, b.allow())
	assert.True(t, b.allow())
}

func TestBreakerDisabled(t *testing.T) {
	b := newBreaker(0, time.Minute)
	for range 10 {
		b.record(true)
	}
	assert.True(t, b.allow())
}
