package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredentialMissing is returned when every step of the resolution chain
// comes up empty. It is a terminal failure for the pending request and is
// surfaced with remediation text, not as a generic error.
var ErrCredentialMissing = errors.New(
	"no API credential configured: obtain a key from your provider's console " +
		"and enter it in settings, or set it in the configuration file")

// DefaultEnvVars maps provider types to their default environment variable
// names, tried in order.
var DefaultEnvVars = map[string][]string{
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// PromptFunc interactively asks the user for a credential. It returns the
// entered value, or an empty string when the user declined.
type PromptFunc func() (string, error)

// ResolverConfig holds configuration for credential resolution.
type ResolverConfig struct {
	// ProviderType selects the default environment variables.
	ProviderType string

	// Configured is the explicit value from the configuration file, tried
	// first.
	Configured string

	// Store is the persisted preference store, tried second. An
	// interactively entered credential is written back to it. May be nil.
	Store *Store

	// Prompt is the interactive fallback, tried last. May be nil when no
	// interactive surface exists.
	Prompt PromptFunc
}

// Resolve finds an API credential using the chain:
// configured value → persisted store → environment → interactive prompt.
// A prompted value is persisted for future sessions. After all steps fail,
// the result is ErrCredentialMissing.
func Resolve(cfg ResolverConfig) (string, error) {
	if key := strings.TrimSpace(cfg.Configured); key != "" {
		return key, nil
	}

	if cfg.Store != nil {
		if key := strings.TrimSpace(cfg.Store.Get(StoreKeyAPIKey)); key != "" {
			return key, nil
		}
	}

	if key := findDefaultEnvKey(cfg.ProviderType); key != "" {
		return key, nil
	}

	if cfg.Prompt != nil {
		key, err := cfg.Prompt()
		if err != nil {
			return "", fmt.Errorf("credential prompt failed: %w", err)
		}
		key = strings.TrimSpace(key)
		if key != "" {
			if cfg.Store != nil {
				if err := cfg.Store.Set(StoreKeyAPIKey, key); err != nil {
					return "", fmt.Errorf("failed to persist credential: %w", err)
				}
			}
			return key, nil
		}
	}

	return "", ErrCredentialMissing
}

func findDefaultEnvKey(providerType string) string {
	for _, envVar := range DefaultEnvVars[providerType] {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	return ""
}
