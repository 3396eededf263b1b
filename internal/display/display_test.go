package display

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/sync"
)

var now = time.Date(2024, 9, 20, 15, 0, 0, 0, time.UTC)

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"seconds", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"days", now.Add(-50 * time.Hour), "2d ago"},
		{"same year", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "Mar 4"},
		{"older", time.Date(2022, 12, 25, 0, 0, 0, 0, time.UTC), "Dec 25, 2022"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeAgo(tt.t, now))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "Grüß...", Truncate("Grüße aus Köln", 7))
}

func TestPriorityBadgeKeepsScore(t *testing.T) {
	for _, score := range []int{0, 20, 45, 73, 100} {
		assert.Contains(t, PriorityBadge(score), strconv.Itoa(score))
	}
}

func TestBacklogOutput(t *testing.T) {
	var buf bytes.Buffer
	Backlog(&buf, []model.BacklogItem{{
		Message: model.Message{
			ID:       7,
			Subject:  "Contract renewal",
			FromName: "Alice",
			Date:     now.Add(-2 * time.Hour),
			IsUnread: true,
		},
		Priority: 73,
		Labels:   []string{"work"},
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "Backlog (1)")
	assert.Contains(t, out, "Contract renewal")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "[work]")
	assert.Contains(t, out, "2h ago")

	buf.Reset()
	Backlog(&buf, nil, now)
	assert.Contains(t, buf.String(), "Backlog clear.")
}

func TestAnalysisOutput(t *testing.T) {
	var buf bytes.Buffer
	Analysis(&buf, &inbox.AnalysisView{
		Message: model.Message{Subject: "", FromName: "Bob", FromEmail: "bob@example.org", Mailbox: "INBOX", UID: 9},
		Analysis: &model.MessageAnalysis{
			Bullets:    []string{"Invoice attached"},
			KeyActions: []string{"Pay by Friday"},
			Urgency:    4,
			Importance: 3,
			Priority:   67,
			Confidence: 0.85,
		},
		Labels:    []string{"finance"},
		LastError: "",
	})

	out := buf.String()
	assert.Contains(t, out, "(no subject)")
	assert.Contains(t, out, "Bob <bob@example.org>")
	assert.Contains(t, out, "Invoice attached")
	assert.Contains(t, out, "Pay by Friday")
	assert.Contains(t, out, "0.85")
	assert.Contains(t, out, "finance")
	assert.NotContains(t, out, "last attempt failed")

	buf.Reset()
	Analysis(&buf, &inbox.AnalysisView{Message: model.Message{Subject: "x"}, LastError: "llm.chat: timeout"})
	assert.Contains(t, buf.String(), "Not analyzed yet.")
	assert.Contains(t, buf.String(), "last attempt failed: llm.chat: timeout")
}

func TestSyncResultAndJobs(t *testing.T) {
	var buf bytes.Buffer
	SyncResult(&buf, "INBOX", &sync.Result{Fetched: 3, Inserted: 2, Updated: 1, Aborted: true})
	assert.Contains(t, buf.String(), "fetched 3, inserted 2, updated 1")
	assert.Contains(t, buf.String(), "(aborted)")

	buf.Reset()
	Jobs(&buf, []jobs.Snapshot{{ID: "abc", Kind: "summarize", Status: jobs.StatusCompleted, Total: 2, OK: 1, Errors: 1, Pct: 100, Note: "1 duplicate id ignored"}})
	assert.Contains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), "100%")
	assert.Contains(t, buf.String(), "1 duplicate id ignored")
}

func TestMemoryOutput(t *testing.T) {
	past := now.Add(-time.Hour)
	var buf bytes.Buffer
	Memory(&buf, []model.MemoryItem{
		{Kind: "person", Key: "alice", Value: "manager"},
		{Kind: "project", Key: "apollo", Value: "launch", ExpiresAt: &past},
	}, now)

	assert.Contains(t, buf.String(), "[PERSON]")
	assert.Contains(t, buf.String(), "(expired)")
}
