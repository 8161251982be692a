// Package providers implements multimodal inference provider support with a
// unified interface.
//
// This package provides a common abstraction over hosted vision-language
// endpoints. It handles:
//   - Single-turn and contextual multimodal requests (text plus inline image)
//   - Image-generation requests routed through a model gateway
//   - Typed failure classification (network, HTTP, provider, safety, format)
//
// All providers implement the Provider interface; concrete wire formats live
// in the gemini and openrouter subpackages and register themselves with the
// factory registry.
package providers

import (
	"context"

	"github.com/ThomasConway01/OutfitMatcher/types"
)

// Provider is the contract for a hosted multimodal inference endpoint.
// One Infer call performs exactly one outbound request and yields exactly one
// result or one classified failure; providers never retry internally.
type Provider interface {
	ID() string

	// Model returns the model identifier used for text inference.
	Model() string

	// Infer sends the request and classifies the response. The returned
	// error, when non-nil, is always a *Error.
	Infer(ctx context.Context, req types.InferenceRequest) (types.Result, error)

	// Close cleans up provider resources (e.g. idle HTTP connections).
	Close() error
}

// ImageGenerator is implemented by providers that can synthesize images.
// The session layer type-asserts for it before starting a visualization flow.
type ImageGenerator interface {
	Provider

	// GenerateImage sends an image-generation request built from a text
	// prompt and returns an image result.
	GenerateImage(ctx context.Context, prompt string) (types.Result, error)
}

// Defaults holds default generation parameters applied to zero-valued
// request fields.
type Defaults struct {
	Temperature float32
	TopP        float32
	TopK        int
	MaxTokens   int
}

// ApplyTo fills zero-valued request parameters from the defaults.
func (d Defaults) ApplyTo(req *types.InferenceRequest) {
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
}
