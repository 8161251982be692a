// Package openrouter implements the Provider interface for OpenAI-style
// chat-completion gateways (bearer-token authentication). It also supports
// routing image-generation calls to a distinct model identifier.
package openrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/ThomasConway01/OutfitMatcher/credentials"
	"github.com/ThomasConway01/OutfitMatcher/logger"
	"github.com/ThomasConway01/OutfitMatcher/providers"
	"github.com/ThomasConway01/OutfitMatcher/types"
)

const providerName = "OpenRouter"

func init() {
	providers.RegisterFactory("openrouter", func(spec providers.Spec) (providers.Provider, error) {
		if spec.APIKey == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key")
		}
		if spec.Model == "" {
			return nil, fmt.Errorf("openrouter provider requires a model identifier")
		}
		return NewProvider(spec.ID, spec.Model, spec.ImageModel, spec.BaseURL,
			spec.APIKey, spec.Referer, spec.Title, spec.Defaults), nil
	})
}

// Provider implements providers.Provider and providers.ImageGenerator for
// an OpenAI-compatible chat-completions gateway.
type Provider struct {
	providers.BaseProvider
	model      string
	imageModel string
	baseURL    string
	cred       credentials.Credential
	referer    string
	title      string
	defaults   providers.Defaults
}

// NewProvider creates a new gateway provider. referer and title populate the
// gateway's identification headers and may be empty.
func NewProvider(id, model, imageModel, baseURL, apiKey, referer, title string, defaults providers.Defaults) *Provider {
	return &Provider{
		BaseProvider: providers.NewBaseProvider(id, nil),
		model:        model,
		imageModel:   imageModel,
		baseURL:      baseURL,
		cred:         credentials.NewAPIKeyCredential(apiKey),
		referer:      referer,
		title:        title,
		defaults:     defaults,
	}
}

// Model returns the model identifier used for text inference.
func (p *Provider) Model() string {
	return p.model
}

// Wire request/response structures.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is either a plain string or an array of content parts.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Content string          `json:"content"`
	Refusal string          `json:"refusal,omitempty"`
	Images  []responseImage `json:"images,omitempty"`
}

type responseImage struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

func (p *Provider) headers() providers.RequestHeaders {
	h := providers.RequestHeaders{}
	if p.referer != "" {
		h["HTTP-Referer"] = p.referer
	}
	if p.title != "" {
		h["X-Title"] = p.title
	}
	return h
}

// buildMessages converts prior turns and the current instruction into the
// chat-completions message array. The image, when present, travels as a
// data-URL content part alongside the text part.
func buildMessages(req types.InferenceRequest) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(req.Prior)+1)

	for _, msg := range req.Prior {
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.GetContent()})
	}

	if req.Image == nil {
		messages = append(messages, chatMessage{Role: types.RoleUser, Content: req.Instruction})
		return messages, nil
	}

	dataURL, err := req.Image.DataURL()
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	messages = append(messages, chatMessage{
		Role: types.RoleUser,
		Content: []contentPart{
			{Type: "text", Text: req.Instruction},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	})
	return messages, nil
}

// Infer sends a chat-completion request and classifies the response.
func (p *Provider) Infer(ctx context.Context, req types.InferenceRequest) (types.Result, error) {
	p.defaults.ApplyTo(&req)

	messages, err := buildMessages(req)
	if err != nil {
		return types.Result{}, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	return p.complete(ctx, chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, len(messages), req.Image != nil)
}

// GenerateImage routes an image-generation prompt to the configured image
// model. The gateway returns generated images in the response message.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (types.Result, error) {
	if p.imageModel == "" {
		return types.Result{}, fmt.Errorf("no image model configured for provider %s", p.ID())
	}

	result, err := p.complete(ctx, chatRequest{
		Model:    p.imageModel,
		Messages: []chatMessage{{Role: types.RoleUser, Content: prompt}},
	}, 1, false)
	if err != nil {
		return types.Result{}, err
	}
	if result.Image == nil {
		return types.Result{}, providers.NewFormatError([]byte(result.Text))
	}
	return result, nil
}

func (p *Provider) complete(ctx context.Context, req chatRequest, messageCount int, hasImage bool) (types.Result, error) {
	start := time.Now()
	logger.InferenceCall(p.ID(), req.Model, messageCount, hasImage)

	respBody, err := p.PostJSON(ctx, p.baseURL+"/chat/completions", req, p.headers(), p.cred, providerName)
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

// parseResponse extracts the first choice's content or generated image.
// An explicit error object wins over any other fields in the body.
func parseResponse(body []byte) (types.Result, error) {
	if provErr := providers.ExtractBodyError(body); provErr != nil {
		return types.Result{}, provErr
	}

	var resp chatResponse
	if err := providers.UnmarshalStrictBody(body, &resp); err != nil {
		return types.Result{}, err
	}

	if len(resp.Choices) == 0 {
		return types.Result{}, providers.NewFormatError(body)
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return types.Result{}, providers.NewSafetyError(choice.Message.Refusal)
	}
	if choice.FinishReason == "content_filter" {
		return types.Result{}, providers.NewSafetyError("response blocked by content filter")
	}

	if len(choice.Message.Images) > 0 {
		url := choice.Message.Images[0].ImageURL.URL
		return types.Result{Image: &types.MediaContent{URL: &url, MIMEType: types.MIMETypeImagePNG}}, nil
	}

	if choice.Message.Content == "" {
		return types.Result{}, providers.NewFormatError(body)
	}
	return types.Result{Text: choice.Message.Content}, nil
}
