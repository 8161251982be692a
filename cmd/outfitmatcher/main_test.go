package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ThomasConway01/OutfitMatcher/providers"
)

// Every provider type config validation accepts must have its factory
// linked into the binary; a missing import would only surface at runtime.
func TestProviderFactoriesRegistered(t *testing.T) {
	for _, typ := range []string{"gemini", "openrouter", "mock"} {
		t.Run(typ, func(t *testing.T) {
			p, err := providers.CreateFromSpec(providers.Spec{ID: typ, Type: typ, APIKey: "k", Model: "m"})
			require.NoError(t, err)
			require.NoError(t, p.Close())
		})
	}
}
