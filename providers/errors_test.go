package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPError(t *testing.T) {
	t.Run("refines provider errors by status", func(t *testing.T) {
		cases := []struct {
			status int
			kind   ErrorKind
		}{
			{http.StatusBadRequest, KindInvalidRequest},
			{http.StatusUnauthorized, KindAuth},
			{http.StatusForbidden, KindAuth},
			{http.StatusTooManyRequests, KindRateLimited},
			{http.StatusInternalServerError, KindProvider},
			{http.StatusServiceUnavailable, KindProvider},
		}
		for _, tc := range cases {
			t.Run(fmt.Sprintf("status %d", tc.status), func(t *testing.T) {
				err := ClassifyHTTPError(tc.status, []byte(`{"error":{"message":"boom"}}`))
				assert.Equal(t, tc.kind, err.Kind)
				assert.Equal(t, tc.status, err.StatusCode)
				assert.Equal(t, "boom", err.Message)
			})
		}
	})

	t.Run("flat message object is recognized", func(t *testing.T) {
		err := ClassifyHTTPError(http.StatusTooManyRequests, []byte(`{"message":"slow down"}`))
		assert.Equal(t, KindRateLimited, err.Kind)
		assert.Equal(t, "slow down", err.Message)
	})

	t.Run("unrecognizable body stays an HTTP error", func(t *testing.T) {
		err := ClassifyHTTPError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
		assert.Equal(t, KindHTTP, err.Kind)
		assert.Equal(t, http.StatusBadGateway, err.StatusCode)
		assert.Contains(t, err.Body, "bad gateway")
	})
}

func TestExtractBodyError(t *testing.T) {
	t.Run("error object in a success body is a provider failure", func(t *testing.T) {
		err := ExtractBodyError([]byte(`{"error":{"message":"model overloaded"}}`))
		require.NotNil(t, err)
		assert.Equal(t, KindProvider, err.Kind)
		assert.Equal(t, "model overloaded", err.Message)
	})

	t.Run("clean body yields nil", func(t *testing.T) {
		assert.Nil(t, ExtractBodyError([]byte(`{"candidates":[]}`)))
		assert.Nil(t, ExtractBodyError([]byte(`not json`)))
	})
}

func TestUnmarshalStrictBody(t *testing.T) {
	var v struct {
		A string `json:"a"`
	}
	require.NoError(t, UnmarshalStrictBody([]byte(`{"a":"b"}`), &v))
	assert.Equal(t, "b", v.A)

	err := UnmarshalStrictBody([]byte(`{{`), &v)
	require.Error(t, err)
	assert.Equal(t, KindUnexpectedFormat, KindOf(err))
}

func TestKindOf(t *testing.T) {
	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		inner := NewSafetyError("declined")
		wrapped := fmt.Errorf("analysis failed: %w", inner)
		assert.Equal(t, KindSafetyFiltered, KindOf(wrapped))
	})

	t.Run("unclassified errors yield empty kind", func(t *testing.T) {
		assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
		assert.Equal(t, ErrorKind(""), KindOf(nil))
	})
}

func TestErrorFormatting(t *testing.T) {
	withStatus := &Error{Kind: KindAuth, StatusCode: 401, Message: "bad key"}
	assert.Equal(t, "auth (HTTP 401): bad key", withStatus.Error())

	withoutStatus := NewNetworkError(errors.New("connection refused"))
	assert.Equal(t, "network: connection refused", withoutStatus.Error())
	assert.ErrorContains(t, withoutStatus.Unwrap(), "connection refused")
}
