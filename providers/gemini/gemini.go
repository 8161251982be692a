// Package gemini implements the Provider interface for the Google
// generative-language endpoint (key-in-query authentication).
package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/ThomasConway01/OutfitMatcher/credentials"
	"github.com/ThomasConway01/OutfitMatcher/logger"
	"github.com/ThomasConway01/OutfitMatcher/providers"
	"github.com/ThomasConway01/OutfitMatcher/types"
)

const (
	providerName = "Gemini"
	roleUser     = "user"
	roleModel    = "model"
	finishSafety = "SAFETY"
	finishRecite = "RECITATION"
	defaultModel = "gemini-1.5-flash"
)

func init() {
	providers.RegisterFactory("gemini", func(spec providers.Spec) (providers.Provider, error) {
		if spec.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		model := spec.Model
		if model == "" {
			model = defaultModel
		}
		return NewProvider(spec.ID, model, spec.BaseURL, spec.APIKey, spec.Defaults), nil
	})
}

// Provider implements providers.Provider for the generateContent API.
type Provider struct {
	providers.BaseProvider
	model    string
	baseURL  string
	cred     credentials.Credential
	defaults providers.Defaults
}

// NewProvider creates a new Gemini provider. This endpoint authenticates with
// the key as a URL query parameter, not a header.
func NewProvider(id, model, baseURL, apiKey string, defaults providers.Defaults) *Provider {
	return &Provider{
		BaseProvider: providers.NewBaseProvider(id, nil),
		model:        model,
		baseURL:      baseURL,
		cred:         credentials.NewAPIKeyCredential(apiKey, credentials.WithQueryParam("key")),
		defaults:     defaults,
	}
}

// Model returns the model identifier used by this provider.
func (p *Provider) Model() string {
	return p.model
}

// Wire request/response structures. The endpoint accepts snake_case part
// fields and camelCase generation config.
type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64 encoded
}

type geminiGenConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// buildContents converts the request's prior turns and current instruction
// into the contents array. Gemini uses "user" and "model" roles.
func buildContents(req types.InferenceRequest) []geminiContent {
	contents := make([]geminiContent, 0, len(req.Prior)+1)

	for _, msg := range req.Prior {
		if msg.Role == types.RoleSystem {
			continue
		}
		role := roleUser
		if msg.Role == types.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.GetContent()}},
		})
	}

	parts := []geminiPart{{Text: req.Instruction}}
	if req.Image != nil && req.Image.IsInline() {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = types.MIMETypeImageJPEG
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: mime,
				Data:     *req.Image.Data,
			},
		})
	}
	contents = append(contents, geminiContent{Role: roleUser, Parts: parts})

	return contents
}

// Infer sends a generateContent request and classifies the response.
func (p *Provider) Infer(ctx context.Context, req types.InferenceRequest) (types.Result, error) {
	start := time.Now()
	p.defaults.ApplyTo(&req)

	geminiReq := geminiRequest{
		Contents: buildContents(req),
		GenerationConfig: &geminiGenConfig{
			Temperature:     req.Temperature,
			TopK:            p.defaults.TopK,
			TopP:            p.defaults.TopP,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	logger.InferenceCall(p.ID(), model, len(req.Prior)+1, req.Image != nil)

	respBody, err := p.PostJSON(ctx, url, geminiReq, nil, p.cred, providerName)
	if err != nil {
		logger.InferenceError(p.ID(), err)
		return types.Result{}, err
	}

	result, err := parseResponse(respBody)
	if err != nil {
		logger.InferenceError(p.ID(), err)
		return types.Result{}, err
	}

	logger.InferenceOutcome(p.ID(), string(result.Kind()), time.Since(start).Milliseconds())
	return result, nil
}

// parseResponse extracts the first candidate's text, or a classified failure.
// An explicit error object wins over any other fields in the body.
func parseResponse(body []byte) (types.Result, error) {
	if provErr := providers.ExtractBodyError(body); provErr != nil {
		return types.Result{}, provErr
	}

	var resp geminiResponse
	if err := providers.UnmarshalStrictBody(body, &resp); err != nil {
		return types.Result{}, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return types.Result{}, providers.NewSafetyError(
			"prompt blocked: " + resp.PromptFeedback.BlockReason)
	}

	if len(resp.Candidates) == 0 {
		return types.Result{}, providers.NewFormatError(body)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case finishSafety:
		return types.Result{}, providers.NewSafetyError("response blocked by safety filters")
	case finishRecite:
		return types.Result{}, providers.NewSafetyError("response blocked due to recitation concerns")
	}

	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return types.Result{}, providers.NewFormatError(body)
	}

	return types.Result{Text: candidate.Content.Parts[0].Text}, nil
}
