package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.LLMConfig{
		EmbeddingModel: "text-embedding-3-small",
		OpenAI:         config.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL},
	})
}

func TestGenerate_TextOnly(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Reinicie el equipo."}}]
		}`))
	})

	out, err := c.Generate(t.Context(), llm.Prompt{Text: "¿Qué hago?"}, llm.Options{Model: "gpt-4o-mini", Temperature: 0.5})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Reinicie el equipo." {
		t.Fatalf("out = %q", out)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", body["model"])
	}
	if body["temperature"] != 0.5 {
		t.Fatalf("temperature = %v, want 0.5", body["temperature"])
	}
	msgs := body["messages"].([]any)
	msg := msgs[0].(map[string]any)
	if msg["content"] != "¿Qué hago?" {
		t.Fatalf("content = %v", msg["content"])
	}
}

func TestGenerate_WithImageSendsDataURI(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Pantalla azul"}}]}`))
	})

	out, err := c.Generate(t.Context(), llm.Prompt{Text: "Describe", Images: [][]byte{[]byte("jpeg")}}, llm.Options{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Pantalla azul" {
		t.Fatalf("out = %q", out)
	}
	if body["temperature"] != float64(0) {
		t.Fatalf("temperature = %v, want 0", body["temperature"])
	}

	parts := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if url := img["url"].(string); !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %q", url)
	}
}

func TestGenerate_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := c.Generate(t.Context(), llm.Prompt{Text: "hola"}, llm.Options{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("error = %v", err)
	}
}

func TestEmbed_ReordersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Fatalf("path = %q, want /embeddings", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	vecs, err := c.Embed(t.Context(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vecs = %v", vecs)
	}
}
