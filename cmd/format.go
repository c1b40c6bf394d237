package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rubiojr/statsgrid/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Strikethrough(true)

	warningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}

	if diff < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatSelections renders selections as key=value pairs in key order.
func formatSelections(selections core.Selections) string {
	parts := make([]string, 0, len(selections))
	for _, key := range selections.Keys() {
		parts = append(parts, key+"="+selections[key].String())
	}
	return strings.Join(parts, " ")
}

func formatSeries(series *core.SeriesSpec) string {
	if series == nil || len(series.Values) == 0 {
		return ""
	}
	values := make([]string, len(series.Values))
	for i, v := range series.Values {
		values[i] = v.String()
	}
	return fmt.Sprintf("%s series [%s]", series.ID, strings.Join(values, ", "))
}

func formatRegionsets(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

// printIndicator prints one committed indicator, marking the active one.
func printIndicator(ind core.Indicator, active bool) {
	marker := "  "
	line := ind.Datasource + "/" + ind.Indicator
	if ind.Name != "" {
		line += " " + ind.Name
	}
	if active {
		marker = activeStyle.Render("* ")
		line = activeStyle.Render(line)
	}
	fmt.Printf("%s%s\n", marker, line)
	details := formatSelections(ind.Selections)
	if s := formatSeries(ind.Series); s != "" {
		details += "  " + s
	}
	fmt.Printf("    %s\n", metaStyle.Render(details))
	fmt.Printf("    %s\n", metaStyle.Render(ind.Hash))
}
