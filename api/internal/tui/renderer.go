package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/util"
)

var (
	accent  = lipgloss.Color("#D97706") // amber
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	faint   = lipgloss.Color("#3F3F46")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
	orange  = lipgloss.Color("#FB923C")
	lime    = lipgloss.Color("#A3E635")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Align(lipgloss.Center)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 4).
			Align(lipgloss.Center).
			Width(68)

	conditionColors = map[damage.Condition]lipgloss.Color{
		damage.ConditionExcellent:       success,
		damage.ConditionGood:            lime,
		damage.ConditionFair:            warning,
		damage.ConditionPoor:            orange,
		damage.ConditionSeverelyDamaged: danger,
	}

	severityColors = map[damage.Severity]lipgloss.Color{
		damage.SeverityMinor:    lime,
		damage.SeverityModerate: warning,
		damage.SeveritySevere:   danger,
	}

	dimStyle      = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	failStyle     = lipgloss.NewStyle().Foreground(danger)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	tagStyle      = lipgloss.NewStyle().Foreground(accent)
	separatorLine = faintStyle.Render(strings.Repeat("─", 64))
)

// RenderReport: сводный отчёт по всем снимкам для терминала.
func RenderReport(rep damage.Report) string {
	var b strings.Builder

	title := headerStyle.Render("damage assessment")
	subtitle := dimStyle.Render(fmt.Sprintf("%d of %d images analysed", rep.AnalyzedCount, rep.ImageCount))
	cond := lipgloss.NewStyle().Bold(true).Foreground(conditionColor(rep.OverallCondition)).Render(string(rep.OverallCondition))
	total := lipgloss.NewStyle().Bold(true).Foreground(fg).Render(util.FormatUSD(rep.TotalCost))
	b.WriteString(boxStyle.Render(title + "\n" + subtitle + "\n\n" + cond + "  " + total))
	b.WriteString("\n\n")

	sc := rep.SeverityCounts
	fmt.Fprintf(&b, "  %s  %s  %s  %s\n\n",
		titleStyle.Render("Severity"),
		severityTag(damage.SeveritySevere, sc.Severe),
		severityTag(damage.SeverityModerate, sc.Moderate),
		severityTag(damage.SeverityMinor, sc.Minor),
	)

	if len(rep.UniqueDamages) == 0 {
		b.WriteString("  " + dimStyle.Render("No damage found.") + "\n")
	} else {
		b.WriteString("  " + titleStyle.Render("Damages") + "\n")
		for _, d := range rep.UniqueDamages {
			renderDamage(&b, d)
		}
	}

	renderGroups(&b, "By type", rep.ByType)
	renderGroups(&b, "By part", rep.ByPart)

	if len(rep.Tags) > 0 {
		b.WriteString("\n  " + separatorLine + "\n\n")
		b.WriteString("  " + tagStyle.Render(strings.Join(rep.Tags, " ")) + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// RenderImages: построчный список снимков с их находками.
func RenderImages(list []damage.ImageAnalysis) string {
	var b strings.Builder
	for i, a := range list {
		name := a.ImageName
		if name == "" {
			name = a.ID
		}
		head := fmt.Sprintf("  %s %s", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), titleStyle.Render(name))
		switch {
		case a.Loading:
			fmt.Fprintf(&b, "%s  %s\n", head, dimStyle.Render("pending"))
			continue
		case a.Error != "":
			fmt.Fprintf(&b, "%s  %s\n", head, failStyle.Render(a.Error))
			continue
		}
		cond := lipgloss.NewStyle().Foreground(conditionColor(a.OverallCondition)).Render(string(a.OverallCondition))
		fmt.Fprintf(&b, "%s  %s\n", head, cond)
		if len(a.Damages) == 0 && a.Message != "" {
			fmt.Fprintf(&b, "      %s\n", faintStyle.Render(a.Message))
		}
		for _, d := range a.Damages {
			renderDamage(&b, d)
		}
	}
	return b.String()
}

func renderDamage(b *strings.Builder, d damage.Damage) {
	icon := lipgloss.NewStyle().Foreground(severityColor(d.Severity)).Render("●")
	name := padRight(d.Part+" · "+d.DamageType, 34)
	cost := dimStyle.Render(padLeft(util.FormatUSD(d.EstimatedCost), 9))
	if d.Location != "" {
		fmt.Fprintf(b, "    %s %s %s  %s\n", icon, name, cost, faintStyle.Render(d.Location))
	} else {
		fmt.Fprintf(b, "    %s %s %s\n", icon, name, cost)
	}
}

func renderGroups(b *strings.Builder, title string, groups []damage.Group) {
	if len(groups) == 0 {
		return
	}
	b.WriteString("\n  " + titleStyle.Render(title) + "\n")
	for _, g := range groups {
		fmt.Fprintf(b, "    %s %s %s\n",
			padRight(g.Key, 28),
			dimStyle.Render(fmt.Sprintf("×%d", g.Count)),
			padLeft(util.FormatUSD(g.TotalCost), 9),
		)
	}
}

func severityTag(s damage.Severity, n int) string {
	return lipgloss.NewStyle().Foreground(severityColor(s)).Bold(true).Render(fmt.Sprintf("%d %s", n, s))
}

func conditionColor(c damage.Condition) lipgloss.Color {
	if col, ok := conditionColors[c]; ok {
		return col
	}
	return dim
}

func severityColor(s damage.Severity) lipgloss.Color {
	if col, ok := severityColors[s]; ok {
		return col
	}
	return dim
}

func padRight(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func padLeft(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}
