package telegram

import (
	"fmt"
	"strings"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/util"
)

// FormatImage: находки по одному фото, n: номер фото в сессии.
func FormatImage(n int, a damage.ImageAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📷 %d. %s", n, displayName(a))
	switch {
	case a.Loading:
		b.WriteString(": ⏳ анализируется")
		return b.String()
	case a.Error != "":
		b.WriteString(": ❌ " + a.Error)
		return b.String()
	}
	fmt.Fprintf(&b, " (%s)", a.OverallCondition)
	if len(a.Damages) == 0 {
		msg := a.Message
		if msg == "" {
			msg = "Повреждений не найдено."
		}
		b.WriteString("\n" + msg)
		return b.String()
	}
	for _, d := range a.Damages {
		b.WriteString("\n • " + damageLine(d))
	}
	return b.String()
}

// FormatImageList: краткий список фото сессии для /report и /remove.
func FormatImageList(list []damage.ImageAnalysis) string {
	var b strings.Builder
	b.WriteString("Фото в отчёте:")
	for i, a := range list {
		status := fmt.Sprintf("%d повр.", len(a.Damages))
		switch {
		case a.Loading:
			status = "⏳"
		case a.Error != "":
			status = "❌"
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, displayName(a), status)
	}
	return b.String()
}

func FormatReport(rep damage.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Сводный отчёт (%d из %d фото)\n", rep.AnalyzedCount, rep.ImageCount)
	fmt.Fprintf(&b, "Состояние: %s\n", rep.OverallCondition)
	fmt.Fprintf(&b, "Оценка ремонта: %s\n", util.FormatUSD(rep.TotalCost))
	sc := rep.SeverityCounts
	fmt.Fprintf(&b, "Серьёзность: severe %d, moderate %d, minor %d", sc.Severe, sc.Moderate, sc.Minor)

	if len(rep.UniqueDamages) > 0 {
		b.WriteString("\n\nПовреждения:")
		for _, d := range rep.UniqueDamages {
			b.WriteString("\n • " + damageLine(d))
		}
	}
	if len(rep.ByType) > 0 {
		b.WriteString("\n\nПо типу:")
		for _, g := range rep.ByType {
			fmt.Fprintf(&b, "\n • %s: %d, %s", g.Key, g.Count, util.FormatUSD(g.TotalCost))
		}
	}
	if len(rep.Tags) > 0 {
		b.WriteString("\n\n" + strings.Join(rep.Tags, " "))
	}
	return b.String()
}

func damageLine(d damage.Damage) string {
	s := fmt.Sprintf("%s: %s (%s)", d.Part, d.DamageType, d.Severity)
	if d.Location != "" {
		s += ", " + d.Location
	}
	return s + " " + util.FormatUSD(d.EstimatedCost)
}

func displayName(a damage.ImageAnalysis) string {
	if a.ImageName != "" {
		return a.ImageName
	}
	return a.ID
}
