package taskclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	// MaxTokens is used when a request leaves MaxTokens at 0
	MaxTokens int
	TopP      float32
	TopK      float32
}

// Gemini implements Client against the Google Gemini API.
type Gemini struct {
	models *genai.Models
	config GeminiConfig
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewTaskClientMissingError()
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ModelPro
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	if cfg.TopK == 0 {
		cfg.TopK = 40
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTaskClientInit, "failed to create Gemini client", err)
	}

	return &Gemini{models: client.Models, config: cfg}, nil
}

// Generate implements Client
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = g.config.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens),
		TopP:            genai.Ptr(g.config.TopP),
		TopK:            genai.Ptr(g.config.TopK),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	start := time.Now()
	result, err := g.models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return Response{}, errors.Wrap(errors.ErrCodeTaskAPI, fmt.Sprintf("generate with %s", model), err)
	}

	resp := Response{
		Content: PlainContent(result.Text()),
		Model:   model,
		Latency: time.Since(start),
	}
	if result.UsageMetadata != nil {
		resp.TokensUsed = int(result.UsageMetadata.TotalTokenCount)
	}
	return resp, nil
}
