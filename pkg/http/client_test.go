package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		assert.Equal(t, "42", r.Header.Get("X-Id"))
		var in map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]int{"double": in["n"] * 2})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithHeader("User-Agent", "test"))
	var out map[string]int
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]int{"n": 21}, map[string]string{"X-Id": "42"}, &out))
	assert.Equal(t, 42, out["double"])
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewClient().PostJSON(context.Background(), srv.URL, struct{}{}, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "nope", se.Body)
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(&StatusError{Code: http.StatusBadGateway}))
	assert.True(t, IsRetryable(&StatusError{Code: http.StatusTooManyRequests}))
	assert.False(t, IsRetryable(&StatusError{Code: http.StatusNotFound}))
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(context.Canceled))
}
