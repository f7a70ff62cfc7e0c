package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-autopilot/src/buttons"
)

const testImage = "data:image/png;base64,AAAA"

func replyWith(status int, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: ResponseMessage{Content: content}}},
		})
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test_api_key", Endpoint: srv.URL})
}

func TestSuggestSendsRequest(t *testing.T) {
	var got ChatRequest
	var auth, referer string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		referer = r.Header.Get("HTTP-Referer")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		replyWith(http.StatusOK, "  Left\n")(w, r)
	}))

	b := c.Suggest(context.Background(), testImage)
	assert.Equal(t, buttons.Left, b)

	assert.Equal(t, "Bearer test_api_key", auth)
	assert.Equal(t, "pokemon-automation", referer)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content[0].Text, "up down left right a b start select")
	assert.Equal(t, "user", got.Messages[1].Role)
	require.Len(t, got.Messages[1].Content, 2)
	require.NotNil(t, got.Messages[1].Content[1].ImageURL)
	assert.Equal(t, testImage, got.Messages[1].Content[1].ImageURL.URL)
	assert.Nil(t, got.Provider)
}

func TestSuggestEveryValidButton(t *testing.T) {
	for _, want := range buttons.All {
		c := newTestClient(t, replyWith(http.StatusOK, string(want)))
		assert.Equal(t, want, c.Suggest(context.Background(), testImage))
	}
}

func TestSuggestFallsBackOnInvalidContent(t *testing.T) {
	for _, content := range []string{"", "A.", "press start", "jump", "up down", "NO_TEXT_FOUND"} {
		t.Run(fmt.Sprintf("%q", content), func(t *testing.T) {
			c := newTestClient(t, replyWith(http.StatusOK, content))
			assert.Equal(t, buttons.Fallback, c.Suggest(context.Background(), testImage))

			_, err := c.Query(context.Background(), testImage)
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func TestSuggestFallsBackOnHTTPFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", replyWith(http.StatusInternalServerError, "up")},
		{"unauthorized", replyWith(http.StatusUnauthorized, "up")},
		{"api error object", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"rate_limit","code":429}}`))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			assert.Equal(t, buttons.Fallback, c.Suggest(context.Background(), testImage))
		})
	}
}

func TestSuggestConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := New(Config{APIKey: "k", Endpoint: "http://" + addr})
	_, err = c.Query(context.Background(), testImage)
	assert.Error(t, err)
	assert.Equal(t, buttons.Fallback, c.Suggest(context.Background(), testImage))
}

func TestQueryRequiresAPIKey(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Query(context.Background(), testImage)
	assert.Error(t, err)
	assert.Zero(t, calls)
}

func TestProvidersAndTimeout(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		replyWith(http.StatusOK, "b")(w, r)
	}))
	c.cfg.Providers = []string{"openai", "azure"}

	assert.Equal(t, buttons.B, c.Suggest(context.Background(), testImage))
	require.NotNil(t, got.Provider)
	assert.Equal(t, []string{"openai", "azure"}, got.Provider.Order)
	require.NotNil(t, got.Provider.AllowFallbacks)
	assert.False(t, *got.Provider.AllowFallbacks)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		replyWith(http.StatusOK, "b")(w, r)
	}))
	defer slow.Close()
	timed := New(Config{APIKey: "k", Endpoint: slow.URL, Timeout: 20 * time.Millisecond})
	assert.Equal(t, buttons.Fallback, timed.Suggest(context.Background(), testImage))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestSuggestLogsWrongAnswerApartFromOutage(t *testing.T) {
	logs := captureLog(t)
	c := newTestClient(t, replyWith(http.StatusOK, "jump"))
	assert.Equal(t, buttons.Fallback, c.Suggest(context.Background(), testImage))
	assert.Contains(t, logs.String(), "Invalid button response")
	assert.Contains(t, logs.String(), `"jump"`)
	assert.NotContains(t, logs.String(), "Error in API call")

	logs.Reset()
	c = newTestClient(t, replyWith(http.StatusInternalServerError, "up"))
	assert.Equal(t, buttons.Fallback, c.Suggest(context.Background(), testImage))
	assert.Contains(t, logs.String(), "Error in API call")
	assert.NotContains(t, logs.String(), "Invalid button response")
}
