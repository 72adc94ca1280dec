package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestParseSuccess(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Write(geminiReply(t, `{"availabilityWindows":[{"start":"2026-02-10T13:00:00-05:00","end":"2026-02-10T17:00:00-05:00","timezone":"America/New_York"}],"message":"Got it."}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", nil).WithEndpoint(srv.URL)
	result, err := client.Parse(context.Background(), Request{
		Message: "Tuesday afternoon works", Timezone: "America/New_York",
	})

	require.NoError(t, err)
	require.Len(t, result.Windows, 1)
	assert.Equal(t, "2026-02-10T13:00:00-05:00", result.Windows[0].Start)
	assert.Equal(t, "Got it.", result.Message)
	assert.Equal(t, "/"+defaultModel+":generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
}

func TestParseUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", nil).WithEndpoint(srv.URL)
	_, err := client.Parse(context.Background(), Request{Message: "hi", Timezone: "UTC"})

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", nil).WithEndpoint(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := client.Parse(context.Background(), Request{Message: "hi", Timezone: "UTC"})
		assert.ErrorIs(t, err, ErrUpstream)
	}

	// The breaker opened after three failures; later calls never reach
	// the upstream.
	assert.Equal(t, 3, calls)
}

func TestDecodeResultStripsCodeFence(t *testing.T) {
	result, err := decodeResult("```json\n{\"availabilityWindows\":[],\"message\":\"ok\"}\n```")

	require.NoError(t, err)
	assert.Equal(t, "ok", result.Message)
	assert.Empty(t, result.Windows)
}

func TestDecodeResultMalformed(t *testing.T) {
	_, err := decodeResult("I could not find any availability, sorry!")
	assert.Error(t, err)

	_, err = decodeResult("{not json}")
	assert.Error(t, err)
}
