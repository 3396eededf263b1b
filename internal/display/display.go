// Package display provides terminal formatting for inboxd output.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

// Styles
var (
	Muted    = lipgloss.NewStyle().Foreground(ColorGray)
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(ColorGreen)
	ErrStyle = lipgloss.NewStyle().Foreground(ColorRed)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(ColorBlue).
			Padding(0, 1)

	PanelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray)
)

// Priority bands used for coloring. Scores are 0..100.
const (
	BandCritical = 80
	BandHigh     = 60
	BandMedium   = 40
	BandLow      = 20
)

// PriorityStyle returns a color-coded style for a 0..100 priority score.
func PriorityStyle(score int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch {
	case score >= BandCritical:
		return base.Foreground(ColorRed)
	case score >= BandHigh:
		return base.Foreground(ColorOrange)
	case score >= BandMedium:
		return base.Foreground(ColorYellow)
	case score >= BandLow:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}

// PriorityBadge renders a score right-aligned in three columns.
func PriorityBadge(score int) string {
	return PriorityStyle(score).Render(fmt.Sprintf("%3d", score))
}

// UnreadDot returns a dot for unread messages and a blank otherwise.
func UnreadDot(unread bool) string {
	if unread {
		return lipgloss.NewStyle().Foreground(ColorBlue).Render("●")
	}
	return " "
}

// TimeAgo formats t relative to now.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SuccessMsg prints a green checkmark and message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red cross and message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, HeaderStyle.Render(title))
}

// Field prints an aligned "label: value" line, skipping empty values.
func Field(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", Muted.Render(fmt.Sprintf("%-11s", label+":")), value)
}

// List prints items as an indented bullet list under label.
func List(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s\n", Muted.Render(label+":"))
	for _, it := range items {
		fmt.Fprintf(w, "    • %s\n", strings.TrimSpace(it))
	}
}
