package openai

import (
	"context"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/util"
)

type Engine struct {
	Model  string
	client *Client
}

var _ llm.Engine = (*Engine)(nil)

func New(key, model, url string, opt ClientOptions) *Engine {
	return &Engine{
		Model:  model,
		client: NewClient("openai", key, url, opt),
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Analyze(ctx context.Context, img llm.Image) (damage.AnalysisResult, error) {
	mime := util.PickMIME(img.MIME, "", img.Data)

	out, err := e.client.Complete(ctx, ChatRequest{
		Model: e.Model,
		Messages: []Message{
			{Role: "system", Content: llm.Prompt},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: llm.UserPrompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: util.MakeDataURL(mime, img.Data), Detail: "high"}},
			}},
		},
		Temperature:    0,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return damage.AnalysisResult{}, err
	}
	return llm.ParseAnalysis(out), nil
}
