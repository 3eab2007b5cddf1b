// Package render draws cycle results for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/portfolio-tracker/internal/format"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// IST is the exchange's wall clock, used for timestamps
var IST = time.FixedZone("IST", 5*3600+30*60)

// Styles holds the lipgloss styles used by the renderer
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Gain   lipgloss.Style
	Loss   lipgloss.Style
	Flat   lipgloss.Style
	Muted  lipgloss.Style
	Warn   lipgloss.Style
	Error  lipgloss.Style
	Box    lipgloss.Style
}

// DefaultStyles returns the standard palette
func DefaultStyles() Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
		Header: lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).Bold(true),
		Cell:   lipgloss.NewStyle(),
		Gain:   lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
		Loss:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4D")).Bold(true),
		Flat:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		Warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4D")).Bold(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
	}
}

type column struct {
	header string
	align  lipgloss.Position
}

var columns = []column{
	{"Company", lipgloss.Left},
	{"Symbol", lipgloss.Left},
	{"Price", lipgloss.Right},
	{"Change", lipgloss.Right},
	{"%", lipgloss.Right},
	{"Qty", lipgloss.Right},
	{"Value", lipgloss.Right},
	{"Day Range", lipgloss.Right},
	{"Volume", lipgloss.Right},
	{"", lipgloss.Left},
}

// Portfolio renders a full cycle: header, holdings table, totals and any
// warnings or guidance.
func Portfolio(result *models.CycleResult, st Styles) string {
	if result == nil {
		return st.Muted.Render("No refresh cycle has completed yet.")
	}

	var b strings.Builder
	b.WriteString(header(result, st))
	b.WriteString("\n\n")

	if len(result.Records) > 0 {
		b.WriteString(table(result.Records, st))
		b.WriteString("\n\n")
		b.WriteString(totals(result.Snapshot, st))
		b.WriteString("\n")
	}

	for _, w := range result.Warnings {
		b.WriteString(st.Warn.Render("! " + w))
		b.WriteString("\n")
	}
	if result.Status == types.CycleStatusFailed {
		b.WriteString(st.Error.Render(result.Summary))
		b.WriteString("\n")
		for _, g := range result.Guidance {
			b.WriteString(st.Muted.Render("  - " + g))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func header(result *models.CycleResult, st Styles) string {
	status := st.Gain
	switch result.Status {
	case types.CycleStatusPartial:
		status = st.Warn
	case types.CycleStatusFailed:
		status = st.Error
	}
	line := fmt.Sprintf("%s  %s  %s",
		st.Title.Render("NSE Portfolio"),
		status.Render(strings.ToUpper(string(result.Status))),
		st.Muted.Render("updated "+result.FinishedAt.In(IST).Format("02 Jan 15:04:05 MST")),
	)
	if result.Status == types.CycleStatusFailed {
		return line
	}
	return line + "\n" + st.Muted.Render(result.Summary)
}

// table lays out one row per record with per-column widths
func table(records []models.NormalizedRecord, st Styles) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, row(r))
	}

	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = lipgloss.Width(c.header)
	}
	for _, cells := range rows {
		for i, cell := range cells {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows)+1)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = st.Header.Width(widths[i]).Align(c.align).Render(c.header)
	}
	lines = append(lines, strings.TrimRight(strings.Join(headers, "  "), " "))

	for n, cells := range rows {
		styled := make([]string, len(cells))
		for i, cell := range cells {
			style := st.Cell
			switch {
			case i == 3 || i == 4:
				style = changeStyle(records[n].Change, st)
			case i == len(cells)-1:
				style = st.Warn
			}
			styled[i] = style.Width(widths[i]).Align(columns[i].align).Render(cell)
		}
		lines = append(lines, strings.TrimRight(strings.Join(styled, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

func row(r models.NormalizedRecord) []string {
	symbol := r.Symbol
	if r.ResolvedSymbol != "" && r.ResolvedSymbol != r.Symbol {
		symbol = fmt.Sprintf("%s (%s)", r.Symbol, r.ResolvedSymbol)
	}
	dayRange := "-"
	if r.DayLow > 0 && r.DayHigh > 0 {
		dayRange = fmt.Sprintf("%s - %s", format.Rupees(r.DayLow), format.Rupees(r.DayHigh))
	}
	return []string{
		r.Name,
		symbol,
		format.Rupees(r.CurrentPrice),
		format.Change(r.Change),
		format.Percent(r.ChangePct),
		fmt.Sprintf("%d", r.Quantity),
		format.Rupees(r.Value),
		dayRange,
		format.Volume(r.Volume),
		flag(r),
	}
}

func flag(r models.NormalizedRecord) string {
	switch {
	case r.IsStale:
		return "stale"
	case r.IsSynthetic:
		return "synthetic"
	}
	return ""
}

func changeStyle(change float64, st Styles) lipgloss.Style {
	switch {
	case change > 0:
		return st.Gain
	case change < 0:
		return st.Loss
	}
	return st.Flat
}

func totals(s models.PortfolioSnapshot, st Styles) string {
	lines := []string{
		fmt.Sprintf("Total value    %s", format.Rupees(s.TotalValue)),
		fmt.Sprintf("Previous close %s", format.Rupees(s.TotalInvested)),
		fmt.Sprintf("Day change     %s", changeStyle(s.TotalChange, st).Render(
			fmt.Sprintf("%s (%s)", format.Change(s.TotalChange), format.Percent(s.TotalChangePct)))),
		fmt.Sprintf("Movers         %s / %s / %s",
			st.Gain.Render(fmt.Sprintf("%d up", s.Gainers)),
			st.Loss.Render(fmt.Sprintf("%d down", s.Losers)),
			st.Flat.Render(fmt.Sprintf("%d flat", s.Unchanged))),
		fmt.Sprintf("Live data      %d of %d", s.FetchSuccess, s.FetchTotal),
	}
	return st.Box.Render(strings.Join(lines, "\n"))
}
