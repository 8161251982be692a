package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ThomasConway01/OutfitMatcher/credentials"
	"github.com/ThomasConway01/OutfitMatcher/logger"
)

// Default HTTP client timeout for inference calls. The transport timeout is
// the only timeout in the system; when it fires the failure surfaces as a
// network error.
const defaultHTTPTimeout = 60 * time.Second

// BaseProvider provides common functionality shared across provider
// implementations. Embed it in concrete provider structs.
type BaseProvider struct {
	id     string
	client *http.Client
}

// NewBaseProvider creates a BaseProvider with the given HTTP client.
// A nil client gets a default one with the standard timeout.
func NewBaseProvider(id string, client *http.Client) BaseProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return BaseProvider{id: id, client: client}
}

// ID returns the provider ID.
func (b *BaseProvider) ID() string {
	return b.id
}

// Close closes the HTTP client's idle connections.
func (b *BaseProvider) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// HTTPClient returns the underlying HTTP client for provider-specific use.
func (b *BaseProvider) HTTPClient() *http.Client {
	return b.client
}

// RequestHeaders is a map of HTTP header key-value pairs.
type RequestHeaders map[string]string

// PostJSON performs a JSON HTTP POST and returns the response body.
// The credential is applied after request logging so keys never reach the
// log path. Failures are classified: transport errors become KindNetwork,
// non-2xx statuses go through ClassifyHTTPError. providerName is used for
// logging.
func (b *BaseProvider) PostJSON(
	ctx context.Context,
	url string,
	request any,
	headers RequestHeaders,
	cred credentials.Credential,
	providerName string,
) ([]byte, error) {
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	logHeaders := make(map[string]string, len(headers))
	for k, v := range headers {
		logHeaders[k] = v
	}
	logger.APIRequest(providerName, http.MethodPost, url, logHeaders, json.RawMessage(reqBytes))

	if cred != nil {
		if err := cred.Apply(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("failed to apply credential: %w", err)
		}
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		logger.APIResponse(providerName, 0, "", err)
		return nil, NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.APIResponse(providerName, resp.StatusCode, "", err)
		return nil, NewNetworkError(err)
	}

	logger.APIResponse(providerName, resp.StatusCode, string(respBytes), nil)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ClassifyHTTPError(resp.StatusCode, respBytes)
	}

	return respBytes, nil
}
