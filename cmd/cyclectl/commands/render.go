package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/citysim/cyclekernel/pkg/cycle"
	"github.com/citysim/cyclekernel/pkg/engine"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Width(18)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).PaddingLeft(2)
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
}

func statusStyle(status engine.CycleStatus) lipgloss.Style {
	switch status {
	case engine.CycleStatusSucceeded:
		return okStyle
	case engine.CycleStatusPartial:
		return warnStyle
	default:
		return errStyle
	}
}

func levelStyle(level engine.RecoveryLevel) lipgloss.Style {
	switch level {
	case engine.RecoveryHeavy:
		return errStyle
	case engine.RecoveryModerate, engine.RecoveryLight:
		return warnStyle
	default:
		return okStyle
	}
}

func scoreLine(s engine.Score) string {
	return fmt.Sprintf("%d (%s)", s.Value, s.Flag)
}

// renderResult draws the cycle summary shown after run and replay.
func renderResult(res *cycle.Result) string {
	s := res.Summary
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Cycle %d  %s", res.CycleID, res.Mode)),
		row("status", statusStyle(res.Status).Render(string(res.Status))),
		row("seed", res.Seed),
		row("civic load", scoreLine(s.CivicLoad)),
		row("cycle weight", scoreLine(s.CycleWeight)),
		row("pattern", scoreLine(s.Pattern.Score)),
		row("migration", scoreLine(s.Migration.Score)),
	}
	if s.Pattern.DominantDomain != "" {
		lines = append(lines, row("dominant domain", s.Pattern.DominantDomain))
	}
	if s.Recovery != nil {
		lines = append(lines,
			row("recovery", levelStyle(s.Recovery.Level).Render(string(s.Recovery.Level))),
			row("overload", s.Recovery.OverloadScore),
			row("window", fmt.Sprintf("%d (duration %d)", s.Recovery.Persisted.Window, s.Recovery.Persisted.Duration)),
		)
	}
	lines = append(lines,
		row("events", fmt.Sprintf("%d (%d generated)", len(res.Context.Events), len(s.GeneratedEvents))),
		row("checksum", s.Checksum),
	)

	lines = append(lines, sectionStyle.Render(titleStyle.Render("Intents")))
	lines = append(lines, row("queued", res.Queue.Total))
	for _, dest := range sortedKeys(res.Queue.ByDestination) {
		lines = append(lines, detailStyle.Render(fmt.Sprintf("%-24s %d", dest, res.Queue.ByDestination[dest])))
	}
	if st := res.Stats; st != nil {
		lines = append(lines,
			row("executed", st.Executed),
			row("skipped", st.Skipped),
			row("ledger calls", st.Calls),
		)
		for _, err := range st.Errors {
			lines = append(lines, errStyle.Render("  ! ")+valueStyle.Render(err.Error()))
		}
	}
	for _, err := range res.ValidationErrors {
		lines = append(lines, warnStyle.Render("  ? ")+valueStyle.Render(err.Error()))
	}

	if res.Replay != nil {
		lines = append(lines, sectionStyle.Render(titleStyle.Render("Replay")))
		if res.Replay.Match {
			lines = append(lines, row("match", okStyle.Render("yes")))
		} else {
			lines = append(lines, row("match", errStyle.Render("no")))
			for _, d := range res.Replay.Differences {
				lines = append(lines, detailStyle.Render(fmt.Sprintf("%s: %s -> %s", d.Field, d.Original, d.Current)))
			}
		}
	}

	if len(res.Phases) > 0 {
		lines = append(lines, sectionStyle.Render(titleStyle.Render("Phases")))
		for _, p := range res.Phases {
			lines = append(lines, row(p.Phase, p.Duration))
		}
	}

	if len(s.CivicLoad.Reasons) > 0 {
		lines = append(lines, sectionStyle.Render(titleStyle.Render("Civic load reasons")))
		for _, r := range s.CivicLoad.Reasons {
			lines = append(lines, detailStyle.Render("- "+r))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderTable draws a plain column-aligned table.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	cells := func(r []string, style lipgloss.Style) string {
		parts := make([]string, len(r))
		for i, c := range r {
			parts[i] = style.Width(widths[i] + 2).Render(c)
		}
		return strings.Join(parts, "")
	}

	lines := []string{cells(header, titleStyle)}
	for _, r := range rows {
		lines = append(lines, cells(r, valueStyle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
