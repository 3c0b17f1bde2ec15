package damage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

func (s Severity) String() string { return string(s) }

func (s Severity) IsValid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// Condition: итоговая оценка состояния автомобиля.
type Condition string

const (
	ConditionExcellent       Condition = "Excellent"
	ConditionGood            Condition = "Good"
	ConditionFair            Condition = "Fair"
	ConditionPoor            Condition = "Poor"
	ConditionSeverelyDamaged Condition = "Severely Damaged"
)

func (c Condition) String() string { return string(c) }

func (c Condition) IsValid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionSeverelyDamaged:
		return true
	}
	return false
}

// Damage: одно повреждение, найденное моделью на снимке.
type Damage struct {
	Part          string   `json:"carPart"`
	DamageType    string   `json:"damageType"`
	Severity      Severity `json:"severity"`
	Location      string   `json:"location"`
	EstimatedCost float64  `json:"estimatedCost"`
}

// Key: идентичность повреждения при дедупликации между снимками.
type Key struct {
	Part       string
	DamageType string
	Location   string
}

func (d Damage) Key() Key {
	return Key{Part: d.Part, DamageType: d.DamageType, Location: d.Location}
}

// UnmarshalJSON принимает estimatedCost и числом, и строкой ("1200", "$1,200").
func (d *Damage) UnmarshalJSON(b []byte) error {
	type alias Damage
	var raw struct {
		alias
		EstimatedCost flexNumber `json:"estimatedCost"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Damage(raw.alias)
	// отрицательная оценка бессмысленна и занижала бы итог
	d.EstimatedCost = max(float64(raw.EstimatedCost), 0)
	return nil
}

type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("estimatedCost: %q is not a number", s)
		}
		*n = flexNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("estimatedCost: %w", err)
	}
	*n = flexNumber(f)
	return nil
}

// AnalysisResult: ответ модели по одному снимку.
type AnalysisResult struct {
	Damages          []Damage  `json:"damages"`
	OverallCondition Condition `json:"overallCondition"`
	Message          string    `json:"message,omitempty"`
}

// ImageAnalysis: состояние анализа одного загруженного снимка.
type ImageAnalysis struct {
	ID               string    `json:"id"`
	ImageName        string    `json:"imageName"`
	ImageHash        string    `json:"imageHash,omitempty"`
	Engine           string    `json:"engine,omitempty"`
	Damages          []Damage  `json:"damages"`
	OverallCondition Condition `json:"overallCondition"`
	Message          string    `json:"message,omitempty"`
	Loading          bool      `json:"loading"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Done сообщает, что результат готов и участвует в сводном отчёте.
func (a ImageAnalysis) Done() bool { return !a.Loading && a.Error == "" }

// Apply переносит ответ модели в запись снимка как есть.
func (a *ImageAnalysis) Apply(r AnalysisResult) {
	a.Damages = r.Damages
	if a.Damages == nil {
		a.Damages = []Damage{}
	}
	a.OverallCondition = r.OverallCondition
	a.Message = r.Message
	a.Loading = false
	a.Error = ""
}

type SeverityCounts struct {
	Severe   int `json:"severe"`
	Moderate int `json:"moderate"`
	Minor    int `json:"minor"`
}

// Group: повреждения, сгруппированные по типу или по детали.
type Group struct {
	Key       string  `json:"key"`
	Count     int     `json:"count"`
	TotalCost float64 `json:"totalCost"`
}

type Report struct {
	UniqueDamages    []Damage       `json:"uniqueDamages"`
	TotalCost        float64        `json:"totalCost"`
	OverallCondition Condition      `json:"overallCondition"`
	Tags             []string       `json:"tags"`
	SeverityCounts   SeverityCounts `json:"severityCounts"`
	ByType           []Group        `json:"byType"`
	ByPart           []Group        `json:"byPart"`
	ImageCount       int            `json:"imageCount"`
	AnalyzedCount    int            `json:"analyzedCount"`
}
