package deepseek

import (
	"context"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/llm/openai"
	"damage-assessor/api/internal/util"
)

// DefaultURL: Azure AI Foundry deployment DeepSeek-R1.
const DefaultURL = "https://DeepSeek-R1-oplms.eastus2.models.ai.azure.com/chat/completions"

const DefaultModel = "DEEPSEEK-REASONER"

type Engine struct {
	Model  string
	client *openai.Client
}

var _ llm.Engine = (*Engine)(nil)

func New(key, model, url string, opt openai.ClientOptions) *Engine {
	if model == "" {
		model = DefaultModel
	}
	if url == "" {
		url = DefaultURL
	}
	return &Engine{
		Model:  model,
		client: openai.NewClient("deepseek", key, url, opt),
	}
}

func (e *Engine) Name() string { return "deepseek" }

func (e *Engine) GetModel() string { return e.Model }

// Analyze: system-роль и response_format этот деплой не принимает,
// поэтому инструкция идёт одним user-сообщением вместе с картинкой.
func (e *Engine) Analyze(ctx context.Context, img llm.Image) (damage.AnalysisResult, error) {
	mime := util.PickMIME(img.MIME, "", img.Data)

	out, err := e.client.Complete(ctx, openai.ChatRequest{
		Model: e.Model,
		Messages: []openai.Message{
			{Role: "user", Content: []openai.ContentPart{
				{Type: "text", Text: llm.Prompt + "\n\n" + llm.UserPrompt},
				{Type: "image_url", ImageURL: &openai.ImageURL{URL: util.MakeDataURL(mime, img.Data)}},
			}},
		},
		Temperature: 0,
	})
	if err != nil {
		return damage.AnalysisResult{}, err
	}
	return llm.ParseAnalysis(out), nil
}
