package llm

import (
	"encoding/json"
	"log"
	"strings"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/util"
)

// Fallback: безопасный результат, когда ответ модели не удалось разобрать.
func Fallback() damage.AnalysisResult {
	return damage.AnalysisResult{
		Damages:          []damage.Damage{},
		OverallCondition: damage.ConditionFair,
		Message:          UnparsableMessage,
	}
}

// IsFallback сообщает, что результат подставлен вместо неразобранного ответа.
// Такой результат не кэшируется и не пишется в историю.
func IsFallback(r damage.AnalysisResult) bool {
	return r.Message == UnparsableMessage && len(r.Damages) == 0
}

// ParseAnalysis достаёт из ответа модели первый JSON-объект и декодирует его.
// Ошибкой это не считается: при любом сбое возвращается Fallback.
func ParseAnalysis(text string) damage.AnalysisResult {
	txt := util.StripCodeFences(strings.TrimSpace(text))
	if txt == "" {
		txt = "{}"
	}
	obj, ok := util.FirstJSONObject(txt)
	if !ok {
		log.Printf("[WARN] llm: no JSON object in model reply (%d bytes)", len(text))
		return Fallback()
	}

	var out damage.AnalysisResult
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		log.Printf("[WARN] llm: bad analysis JSON: %v", err)
		return Fallback()
	}
	if out.Damages == nil {
		out.Damages = []damage.Damage{}
	}
	if out.OverallCondition == "" {
		out.OverallCondition = damage.ConditionFair
	}
	return out
}
