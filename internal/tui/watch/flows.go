package watch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"wxbridge/internal/events"
)

// FlowStats counts messages crossing the bridge in each direction since
// the dashboard connected.
type FlowStats struct {
	InboundReceived  int
	InboundDelivered int
	InboundDropped   int
	InboundFailed    int

	OutboundReceived  int
	OutboundDelivered int
	OutboundFailed    int
}

// updateFlowStats folds one event into the counters. Adapter breaker
// transitions update the adapters map instead.
func updateFlowStats(stats *FlowStats, adapters map[string]string, e events.Event) {
	switch e.Type {
	case "webhook.received":
		stats.InboundReceived++
	case "forward.delivered":
		stats.InboundDelivered++
	case "forward.failed":
		stats.InboundFailed++
	case "message.dropped":
		stats.InboundDropped++
	case "outbound.received":
		stats.OutboundReceived++
	case "outbound.delivered":
		stats.OutboundDelivered++
	case "outbound.failed":
		stats.OutboundFailed++
	case "breaker.state_change":
		data := make(map[string]any)
		_ = json.Unmarshal(e.Data, &data)
		service, _ := data["service"].(string)
		to, _ := data["to"].(string)
		if service != "" && to != "" {
			adapters[service] = to
		}
	}
}

func renderFlows(stats FlowStats, theme Theme, width int) string {
	innerWidth := width - 4

	inbound := fmt.Sprintf("  WeChat → CXone   received %d  delivered %d  dropped %d  failed %d",
		stats.InboundReceived, stats.InboundDelivered, stats.InboundDropped, stats.InboundFailed)
	outbound := fmt.Sprintf("  CXone  → WeChat  received %d  delivered %d  failed %d",
		stats.OutboundReceived, stats.OutboundDelivered, stats.OutboundFailed)

	inStyle, outStyle := theme.Dim, theme.Dim
	if stats.InboundFailed > 0 {
		inStyle = theme.StatusWarn
	}
	if stats.OutboundFailed > 0 {
		outStyle = theme.StatusWarn
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("MESSAGE FLOW"),
		inStyle.Render(inbound),
		outStyle.Render(outbound),
	)

	return theme.Border.Width(innerWidth).Render(content)
}

// renderAdapters shows the downstream circuit breaker state per adapter.
func renderAdapters(adapters map[string]string, theme Theme, width int) string {
	innerWidth := width - 4

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, table.Row{name, adapters[name]})
	}
	if len(rows) == 0 {
		rows = append(rows, table.Row{"-", "waiting for health check"})
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Adapter", Width: 16},
			{Title: "Breaker", Width: innerWidth - 20},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("ADAPTERS"),
		t.View(),
	)

	return theme.Border.Width(innerWidth).Render(content)
}
