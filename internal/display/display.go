// Package display provides terminal formatting for mailtriage output.
package display

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dhowell/mailtriage/internal/triage"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	UrgentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	HighStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#ea580c"))
	NormalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	LowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	MarketingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	InfoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
	DoneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
)

// CategoryDot returns a colored dot for a primary category.
func CategoryDot(category string) string {
	switch category {
	case triage.CategoryUrgent:
		return UrgentStyle.Render("●")
	case triage.CategoryPriority1:
		return HighStyle.Render("●")
	case triage.CategoryPriority2:
		return NormalStyle.Render("○")
	case triage.CategoryPriority3, triage.CategoryNoReplyNeeded:
		return LowStyle.Render("○")
	case triage.CategoryMarketing:
		return MarketingStyle.Render("◌")
	case triage.CategoryInformational:
		return InfoStyle.Render("○")
	case triage.CategoryComplete, triage.CategoryPossiblyComplete:
		return DoneStyle.Render("●")
	default:
		return Dim.Render("·")
	}
}

// CategoryBadge returns a dot plus a padded category label.
func CategoryBadge(category string) string {
	return fmt.Sprintf("%s %-17s", CategoryDot(category), category)
}

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05", time.RFC3339Nano} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// WarnMsg prints a dim warning to stderr.
func WarnMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, Muted.Render("! "+msg))
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// SubHeader prints a dim subsection label.
func SubHeader(title string) {
	fmt.Println(Muted.Render(title))
}

// MessageLine prints one triaged message with its badge.
func MessageLine(category, from, subject, received string) {
	fmt.Printf("  %s %s  %s  %s\n",
		CategoryBadge(category),
		Bold.Render(Truncate(from, 28)),
		Truncate(subject, 50),
		Dim.Render(TimeAgo(received)),
	)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
