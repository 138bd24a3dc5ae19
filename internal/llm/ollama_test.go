package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Complete(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "yes, they are allies", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "test-model"})

	resp, err := client.Complete(context.Background(), "are they allies?", CompleteOptions{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "yes, they are allies", resp)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, 0.7, gotReq.Options["temperature"])
}

func TestOllamaClient_ZeroTemperatureOmitsOptions(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "prompt", CompleteOptions{})
	require.NoError(t, err)
	assert.Nil(t, gotReq.Options)
}

func TestOllamaClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "prompt", CompleteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaClient_Defaults(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{})
	assert.Equal(t, "qwen2.5:7b", client.GetModel())
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"content":"no"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), "related?", CompleteOptions{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "no", resp)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "prompt", CompleteOptions{})
	assert.Error(t, err)
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := NewTextGenerator(GeneratorConfig{Provider: "ollama", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, gen)

	gen, err = NewTextGenerator(GeneratorConfig{Provider: "", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, gen, "empty provider defaults to ollama")

	gen, err = NewTextGenerator(GeneratorConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)

	_, err = NewTextGenerator(GeneratorConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
