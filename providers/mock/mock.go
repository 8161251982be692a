// Package mock provides a scripted provider implementation for tests.
package mock

import (
	"context"
	"sync"

	"github.com/ThomasConway01/OutfitMatcher/providers"
	"github.com/ThomasConway01/OutfitMatcher/types"
)

func init() {
	providers.RegisterFactory("mock", func(spec providers.Spec) (providers.Provider, error) {
		return NewProvider(spec.ID), nil
	})
}

// Step is one scripted reply: a result or a failure.
type Step struct {
	Result types.Result
	Err    error
}

// Provider replays scripted results in order and records every request it
// receives. When the script runs out, it keeps returning the last step.
// It is safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	id       string
	steps    []Step
	imgSteps []Step

	// Requests records every Infer request, in order.
	Requests []types.InferenceRequest
	// ImagePrompts records every GenerateImage prompt, in order.
	ImagePrompts []string
}

// NewProvider creates an empty mock provider. With no script, Infer returns
// an empty text result.
func NewProvider(id string) *Provider {
	return &Provider{id: id}
}

// ID returns the provider ID.
func (p *Provider) ID() string { return p.id }

// Model returns a fixed mock model identifier.
func (p *Provider) Model() string { return "mock-model" }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// Script appends scripted replies for Infer calls.
func (p *Provider) Script(steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
	return p
}

// ScriptImages appends scripted replies for GenerateImage calls.
func (p *Provider) ScriptImages(steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imgSteps = append(p.imgSteps, steps...)
	return p
}

// Infer records the request and replays the next scripted step.
func (p *Provider) Infer(_ context.Context, req types.InferenceRequest) (types.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	step := nextStep(p.steps, len(p.Requests)-1)
	return step.Result, step.Err
}

// GenerateImage records the prompt and replays the next scripted image step.
func (p *Provider) GenerateImage(_ context.Context, prompt string) (types.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ImagePrompts = append(p.ImagePrompts, prompt)
	step := nextStep(p.imgSteps, len(p.ImagePrompts)-1)
	return step.Result, step.Err
}

// CallCount returns how many Infer requests have been recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

func nextStep(steps []Step, i int) Step {
	if len(steps) == 0 {
		return Step{}
	}
	if i >= len(steps) {
		return steps[len(steps)-1]
	}
	return steps[i]
}
