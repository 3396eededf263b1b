package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/sync"
)

const subjectWidth = 60

// Messages prints one line per message.
func Messages(w io.Writer, msgs []model.Message, now time.Time) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, Muted.Render("No messages."))
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s %s  %-24s  %s  %s\n",
			UnreadDot(m.IsUnread),
			Muted.Render(fmt.Sprintf("%6d", m.ID)),
			Truncate(m.Sender(), 24),
			Truncate(subjectOf(m), subjectWidth),
			Muted.Render(TimeAgo(m.Date, now)),
		)
	}
}

// Backlog prints the priority backlog, highest first.
func Backlog(w io.Writer, items []model.BacklogItem, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, Muted.Render("Backlog clear."))
		return
	}

	fmt.Fprintf(w, "Backlog (%d):\n\n", len(items))
	for _, it := range items {
		labels := ""
		if len(it.Labels) > 0 {
			labels = Muted.Render(" [" + strings.Join(it.Labels, ", ") + "]")
		}
		fmt.Fprintf(w, "%s %s %s  %-24s  %s%s  %s\n",
			PriorityBadge(it.Priority),
			UnreadDot(it.IsUnread),
			Muted.Render(fmt.Sprintf("%6d", it.ID)),
			Truncate(it.Sender(), 24),
			Truncate(subjectOf(it.Message), subjectWidth),
			labels,
			Muted.Render(TimeAgo(it.Date, now)),
		)
	}
}

// Analysis prints a message with its analysis.
func Analysis(w io.Writer, v *inbox.AnalysisView) {
	m := v.Message
	Header(w, Truncate(subjectOf(m), subjectWidth+10))
	Field(w, "From", senderLine(m))
	Field(w, "Date", m.Date.Local().Format("Mon Jan 2 2006 15:04"))
	Field(w, "Mailbox", fmt.Sprintf("%s (uid %d)", m.Mailbox, m.UID))
	if len(v.Labels) > 0 {
		Field(w, "Labels", strings.Join(v.Labels, ", "))
	}

	a := v.Analysis
	if a == nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, Muted.Render("  Not analyzed yet."))
	} else {
		Field(w, "Priority", fmt.Sprintf("%s  (urgency %d, importance %d)",
			PriorityBadge(a.Priority), a.Urgency, a.Importance))
		Field(w, "Confidence", strconv.FormatFloat(a.Confidence, 'f', 2, 64))
		Field(w, "Model", a.Model)
		fmt.Fprintln(w)
		List(w, "Summary", a.Bullets)
		List(w, "Actions", a.KeyActions)
		Field(w, "Notes", a.Notes)
		if a.Truncated {
			fmt.Fprintln(w, Muted.Render("  (body was truncated before analysis)"))
		}
	}

	if v.LastError != "" {
		fmt.Fprintln(w)
		ErrorMsg(w, "last attempt failed: %s", v.LastError)
	}
}

// SyncResult prints the counters of one sync invocation.
func SyncResult(w io.Writer, label string, r *sync.Result) {
	if r == nil {
		return
	}
	line := fmt.Sprintf("%s: fetched %d, inserted %d, updated %d, skipped %d, errors %d",
		label, r.Fetched, r.Inserted, r.Updated, r.Skipped, r.Errors)
	if r.Aborted {
		ErrorMsg(w, "%s (aborted)", line)
		return
	}
	SuccessMsg(w, "%s", line)
}

// Job prints one job snapshot.
func Job(w io.Writer, s jobs.Snapshot) {
	fmt.Fprintf(w, "%s  %-9s %-10s %3d%%  ok %d  skipped %d  errors %d  remaining %d\n",
		Bold.Render(s.ID),
		s.Kind,
		jobStatus(s.Status),
		s.Pct, s.OK, s.Skipped, s.Errors, s.Remaining,
	)
	if s.Note != "" {
		fmt.Fprintf(w, "  %s\n", Muted.Render(s.Note))
	}
}

// Jobs prints job snapshots.
func Jobs(w io.Writer, snaps []jobs.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, Muted.Render("No jobs."))
		return
	}
	for _, s := range snaps {
		Job(w, s)
	}
}

// Memory prints one memory fact per line.
func Memory(w io.Writer, items []model.MemoryItem, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, Muted.Render("No memory items."))
		return
	}
	for _, it := range items {
		expiry := ""
		if it.ExpiresAt != nil {
			if it.ExpiresAt.Before(now) {
				expiry = ErrStyle.Render(" (expired)")
			} else {
				expiry = Muted.Render(" (until " + it.ExpiresAt.Local().Format("Jan 2 15:04") + ")")
			}
		}
		fmt.Fprintf(w, "[%s] %s: %s%s\n", strings.ToUpper(it.Kind), Bold.Render(it.Key), it.Value, expiry)
	}
}

func jobStatus(s jobs.Status) string {
	switch s {
	case jobs.StatusCompleted:
		return Success.Render(string(s))
	case jobs.StatusRunning:
		return lipgloss.NewStyle().Foreground(ColorYellow).Render(string(s))
	default:
		return Muted.Render(string(s))
	}
}

func subjectOf(m model.Message) string {
	if strings.TrimSpace(m.Subject) == "" {
		return "(no subject)"
	}
	return m.Subject
}

func senderLine(m model.Message) string {
	if m.FromName != "" && m.FromEmail != "" {
		return fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
	}
	return m.Sender()
}
