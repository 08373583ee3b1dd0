package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSSE emits one "data: ..." event and flushes it to the client.
func writeSSE(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()
	flusher, ok := w.(http.Flusher)
	require.True(t, ok, "response writer must support flushing")
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
}

func TestAskCompletionUsesServerUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"text":"Hello!"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":2}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskCompletion(client, "test-model", "Say hi", 16)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Text)
	assert.Equal(t, 2, resp.UsageTokens)
	assert.Greater(t, resp.Elapsed, 0.0)
}

func TestAskChatWithoutUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskChat(client, "test-model", "Say hi", 16)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Text)
	assert.Equal(t, 0, resp.UsageTokens)
}

func TestAskChatStreamAccumulatesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)

		// Setup latency before the first chunk must stay outside the
		// measured window.
		time.Sleep(250 * time.Millisecond)

		for _, delta := range []string{"Hello", ", ", "world!"} {
			writeSSE(t, w, fmt.Sprintf(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`, delta))
			time.Sleep(10 * time.Millisecond)
		}
		writeSSE(t, w, "[DONE]")
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskChatStream(client, "test-model", "Say hi", 16, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", resp.Text)
	assert.Equal(t, 0, resp.UsageTokens)
	assert.Greater(t, resp.Elapsed, 0.0)
	assert.Less(t, resp.Elapsed, 0.2, "setup latency leaked into the measured window")
}

func TestAskChatStreamReportsUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(t, w, `{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hi"}}]}`)
		writeSSE(t, w, `{"object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":39,"total_tokens":42}}`)
		writeSSE(t, w, "[DONE]")
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskChatStream(client, "test-model", "Say hi", 16, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hi", resp.Text)
	assert.Equal(t, 42, resp.UsageTokens)
}

func TestAskCompletionStreamAccumulatesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		sseHeaders(w)
		for _, text := range []string{"Once", " upon", " a time"} {
			writeSSE(t, w, fmt.Sprintf(`{"object":"text_completion","choices":[{"index":0,"text":%q}]}`, text))
		}
		writeSSE(t, w, "[DONE]")
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskCompletionStream(client, "test-model", "Tell a story", 16, nil)
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time", resp.Text)
}

func TestAskChatStreamEmptyStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(t, w, "[DONE]")
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	resp, err := AskChatStream(client, "test-model", "Say hi", 16, nil)
	require.NoError(t, err)

	assert.Empty(t, resp.Text)
	assert.Zero(t, resp.Elapsed)
}

func TestAskChatServerErrorIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	_, err := AskChat(client, "test-model", "Say hi", 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestAskChatMalformedBodyIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "this is not json")
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	_, err := AskChat(client, "test-model", "Say hi", 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestAskChatConnectionRefusedIsNetworkError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/v1", "test-key", time.Second)
	_, err := AskChat(client, "test-model", "Say hi", 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestGetFirstAvailableModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"llama-3","object":"model"},{"id":"other","object":"model"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	model, err := GetFirstAvailableModel(client)
	require.NoError(t, err)
	assert.Equal(t, "llama-3", model)
}

func TestGetFirstAvailableModelEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "test-key", 0)
	_, err := GetFirstAvailableModel(client)
	require.Error(t, err)
}
