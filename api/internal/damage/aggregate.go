package damage

// Пороговые значения сводной оценки (AUD).
const (
	severelyDamagedCost = 10000
	poorCost            = 5000
	fairCost            = 2000
	goodCost            = 500

	severelyDamagedSevere = 3
	poorModerate          = 3

	majorRepairCost = 5000
)

var typeTags = map[string]string{
	"scratch":    "#Scratch",
	"dent":       "#Dent",
	"crack":      "#Crack",
	"broken":     "#Broken",
	"bent":       "#Bent",
	"paint peel": "#PaintWork",
}

const (
	TagAccidentDamage = "#AccidentDamage"
	TagMajorRepair    = "#MajorRepair"
	TagMinorRepair    = "#MinorRepair"
)

// Aggregate строит сводный отчёт по готовым результатам.
// Записи в процессе анализа и с ошибкой не учитываются.
func Aggregate(analyses []ImageAnalysis) Report {
	rep := Report{
		UniqueDamages:    []Damage{},
		OverallCondition: ConditionExcellent,
		Tags:             []string{},
		ByType:           []Group{},
		ByPart:           []Group{},
		ImageCount:       len(analyses),
	}

	var all []Damage
	for _, a := range analyses {
		if !a.Done() {
			continue
		}
		rep.AnalyzedCount++
		all = append(all, a.Damages...)
	}

	rep.UniqueDamages = Dedup(all)
	for _, d := range rep.UniqueDamages {
		rep.TotalCost += d.EstimatedCost
		switch d.Severity {
		case SeveritySevere:
			rep.SeverityCounts.Severe++
		case SeverityModerate:
			rep.SeverityCounts.Moderate++
		case SeverityMinor:
			rep.SeverityCounts.Minor++
		}
	}

	rep.OverallCondition = Classify(len(rep.UniqueDamages), rep.SeverityCounts, rep.TotalCost)
	rep.Tags = Tags(rep.UniqueDamages, rep.SeverityCounts, rep.TotalCost)
	rep.ByType = groupBy(rep.UniqueDamages, func(d Damage) string { return d.DamageType })
	rep.ByPart = groupBy(rep.UniqueDamages, func(d Damage) string { return d.Part })
	return rep
}

// Dedup схлопывает повторы по (деталь, тип, расположение).
// Позиция остаётся за первым вхождением, значение за самым дорогим;
// при равной стоимости остаётся первое.
func Dedup(damages []Damage) []Damage {
	out := make([]Damage, 0, len(damages))
	idx := make(map[Key]int, len(damages))
	for _, d := range damages {
		k := d.Key()
		if i, ok := idx[k]; ok {
			if d.EstimatedCost > out[i].EstimatedCost {
				out[i] = d
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, d)
	}
	return out
}

// Classify: первое сработавшее правило выигрывает.
func Classify(count int, sc SeverityCounts, total float64) Condition {
	switch {
	case count == 0:
		return ConditionExcellent
	case sc.Severe >= severelyDamagedSevere || total > severelyDamagedCost:
		return ConditionSeverelyDamaged
	case sc.Severe >= 1 || sc.Moderate >= poorModerate || total > poorCost:
		return ConditionPoor
	case sc.Moderate >= 1 || total > fairCost:
		return ConditionFair
	case total > goodCost:
		return ConditionGood
	default:
		return ConditionExcellent
	}
}

func Tags(unique []Damage, sc SeverityCounts, total float64) []string {
	tags := []string{}
	seen := make(map[string]struct{})
	for _, d := range unique {
		if _, ok := seen[d.DamageType]; ok {
			continue
		}
		seen[d.DamageType] = struct{}{}
		if t, ok := typeTags[d.DamageType]; ok {
			tags = append(tags, t)
		}
	}
	if len(unique) > 0 {
		tags = append(tags, TagAccidentDamage)
	}
	switch {
	case total > majorRepairCost || sc.Severe > 0:
		tags = append(tags, TagMajorRepair)
	case total > 0:
		tags = append(tags, TagMinorRepair)
	}
	return tags
}

func groupBy(damages []Damage, key func(Damage) string) []Group {
	out := []Group{}
	idx := make(map[string]int)
	for _, d := range damages {
		k := key(d)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Key: k})
		}
		out[i].Count++
		out[i].TotalCost += d.EstimatedCost
	}
	return out
}
