package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/util"
)

type Engine struct {
	APIKey  string
	Model   string
	Retries int
}

var _ llm.Engine = (*Engine)(nil)

func New(apiKey, model string, retries int) *Engine {
	return &Engine{
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		Retries: max(retries, 0),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Analyze(ctx context.Context, img llm.Image) (damage.AnalysisResult, error) {
	if e.APIKey == "" {
		return damage.AnalysisResult{}, fmt.Errorf("%w: GEMINI_API_KEY is empty", llm.ErrUpstream)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return damage.AnalysisResult{}, fmt.Errorf("%w: gemini client: %v", llm.ErrUpstream, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	// Возвращаем строго JSON
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.Prompt)},
	}

	parts := []genai.Part{
		genai.Text(llm.UserPrompt),
		&genai.Blob{MIMEType: util.PickMIME(img.MIME, "", img.Data), Data: img.Data},
	}

	// Ретраи на случай 5xx/транзиентных сбоёв
	var lastErr error
	attempts := max(e.Retries, 0) + 1
retry:
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err == nil {
			return llm.ParseAnalysis(firstText(resp)), nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * 300 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			break retry
		case <-t.C:
		}
	}
	return damage.AnalysisResult{}, fmt.Errorf("%w: gemini: %v", llm.ErrUpstream, lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func ptrFloat32(f float32) *float32 { return &f }
