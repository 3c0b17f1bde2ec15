package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
)

type stubEngine struct{ name string }

func (s stubEngine) Name() string     { return s.name }
func (s stubEngine) GetModel() string { return s.name + "-model" }
func (s stubEngine) Analyze(context.Context, llm.Image) (damage.AnalysisResult, error) {
	return damage.AnalysisResult{}, nil
}

func TestEngines_GetEngine(t *testing.T) {
	engs := llm.NewEngines("deepseek", stubEngine{"deepseek"}, stubEngine{"openai"}, nil)

	def, err := engs.GetEngine("")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", def.Name())

	gpt, err := engs.GetEngine(" GPT ")
	require.NoError(t, err)
	assert.Equal(t, "openai", gpt.Name())

	_, err = engs.GetEngine("gemini")
	assert.ErrorIs(t, err, llm.ErrUnknownEngine)

	assert.Equal(t, []string{"deepseek", "openai"}, engs.Names())
}

func TestManager_PerChat(t *testing.T) {
	m := llm.NewManager(stubEngine{"deepseek"})
	m.Set(42, stubEngine{"gemini"})

	assert.Equal(t, "gemini", m.Get(42).Name())
	assert.Equal(t, "deepseek", m.Get(7).Name())
}
