package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wxbridge/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".delivered"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"), strings.HasSuffix(e.Type, ".dropped"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".received"):
		typeStyle = theme.StatusWarn
	case strings.HasPrefix(e.Type, "breaker"):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))
	desc := extractEventDesc(e)

	return fmt.Sprintf("%s %s %s", ts, typeName, desc)
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if id, ok := data["external_id"].(string); ok && id != "" {
		parts = append(parts, maskExternalID(id))
	}

	if postID, ok := data["post_id"].(string); ok && postID != "" {
		parts = append(parts, postID)
	}

	if reason, ok := data["reason"].(string); ok {
		parts = append(parts, reason)
	}

	if kind, ok := data["error_kind"].(string); ok {
		parts = append(parts, kind)
	}

	if service, ok := data["service"].(string); ok {
		if to, ok := data["to"].(string); ok {
			parts = append(parts, fmt.Sprintf("%s→%s", service, to))
		}
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}

// maskExternalID keeps only a short prefix of a platform user id.
func maskExternalID(id string) string {
	if len(id) > 8 {
		id = id[:8] + "…"
	}
	return "[" + id + "]"
}
