package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
)

func TestParseAnalysis_FencedReply(t *testing.T) {
	reply := "```json\n" + `{
  "damages": [
    {"carPart": "front bumper", "damageType": "dent", "severity": "moderate", "location": "front", "estimatedCost": 850}
  ],
  "overallCondition": "Fair"
}` + "\n```"

	got := llm.ParseAnalysis(reply)
	require.Len(t, got.Damages, 1)
	assert.Equal(t, "front bumper", got.Damages[0].Part)
	assert.Equal(t, damage.SeverityModerate, got.Damages[0].Severity)
	assert.Equal(t, 850.0, got.Damages[0].EstimatedCost)
	assert.Equal(t, damage.ConditionFair, got.OverallCondition)
	assert.Empty(t, got.Message)
}

func TestParseAnalysis_ProseAroundJSON(t *testing.T) {
	reply := `<think>the bumper {looks} bent</think>
Sure! Here is the assessment: {"damages": [], "overallCondition": "Excellent", "message": "Damage not clearly visible in this image."} Let me know if you need more.`

	got := llm.ParseAnalysis(reply)
	assert.Empty(t, got.Damages)
	assert.NotNil(t, got.Damages)
	assert.Equal(t, damage.ConditionExcellent, got.OverallCondition)
	assert.Equal(t, llm.NotVisibleMessage, got.Message)
}

func TestParseAnalysis_KeepsModelCondition(t *testing.T) {
	got := llm.ParseAnalysis(`{"damages":[{"carPart":"door","damageType":"scratch","severity":"minor","location":"left","estimatedCost":"120"}],"overallCondition":"Poor"}`)
	assert.Equal(t, damage.ConditionPoor, got.OverallCondition)
	assert.Equal(t, 120.0, got.Damages[0].EstimatedCost)
}

func TestParseAnalysis_Fallback(t *testing.T) {
	for name, reply := range map[string]string{
		"no json":       "I'm sorry, I can't analyze this image.",
		"truncated":     `{"damages": [{"carPart": "door"`,
		"bad cost":      `{"damages":[{"carPart":"door","estimatedCost":"unknown"}],"overallCondition":"Good"}`,
		"wrong damages": `{"damages":"none","overallCondition":"Good"}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, llm.Fallback(), llm.ParseAnalysis(reply))
		})
	}
}

func TestParseAnalysis_EmptyReply(t *testing.T) {
	got := llm.ParseAnalysis("")
	assert.NotNil(t, got.Damages)
	assert.Empty(t, got.Damages)
	assert.Equal(t, damage.ConditionFair, got.OverallCondition)
}

func TestPromptMentionsContract(t *testing.T) {
	for _, s := range []string{"carPart", "estimatedCost", "AUD", "paint peel", "Severely Damaged", llm.NotVisibleMessage} {
		assert.Contains(t, llm.Prompt, s)
	}
}
