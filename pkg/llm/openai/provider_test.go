package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kart-io/bdlaw/pkg/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewProviderWithConfig("test", &Config{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		EmbedModel: "embed-model",
		ChatModel:  "chat-model",
		Timeout:    5 * time.Second,
	})
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewProvider(map[string]any{}); err == nil {
		t.Fatal("expected error when api_key is missing")
	}
	if _, err := NewOpenRouterProvider(map[string]any{"chat_model": "x"}); err == nil {
		t.Fatal("expected error when api_key is missing")
	}
}

func TestNewOpenRouterProviderDefaults(t *testing.T) {
	p, err := NewOpenRouterProvider(map[string]any{"api_key": "k", "chat_model": "some/model"})
	if err != nil {
		t.Fatalf("NewOpenRouterProvider failed: %v", err)
	}
	op := p.(*Provider)
	if op.Name() != OpenRouterName {
		t.Errorf("expected name %q, got %q", OpenRouterName, op.Name())
	}
	if op.config.BaseURL != defaultOpenRouterBaseURL {
		t.Errorf("unexpected base url %q", op.config.BaseURL)
	}
	if op.config.ChatModel != "some/model" {
		t.Errorf("unexpected chat model %q", op.config.ChatModel)
	}
}

func TestChat(t *testing.T) {
	var got map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","model":"chat-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"query\":\"rent\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	})

	resp, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}, llm.WithTemperature(0))
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content() != `{"query":"rent"}` {
		t.Errorf("unexpected content %q", resp.Content())
	}
	if resp.TokenUsage.TotalTokens != 7 {
		t.Errorf("unexpected usage %+v", resp.TokenUsage)
	}

	if got["model"] != "chat-model" {
		t.Errorf("unexpected model %v", got["model"])
	}
	if _, ok := got["temperature"]; !ok {
		t.Error("explicit zero temperature must be sent")
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestChatUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	if _, err := p.Chat(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Errorf("expected stream=true")
		}
		if req["max_tokens"] != float64(64) {
			t.Errorf("expected max_tokens=64, got %v", req["max_tokens"])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// 首个分片没有 choices，应被跳过
		_, _ = io.WriteString(w, "data: {\"id\":\"1\",\"choices\":[]}\n\n")
		for _, piece := range []string{"Sec", "tion 1"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	temp := float32(0.5)
	stream, err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}},
		&llm.ChatOptions{Temperature: &temp, MaxTokens: 64})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	var finish string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		sb.WriteString(chunk.Content)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	if sb.String() != "Section 1" {
		t.Errorf("unexpected stream text %q", sb.String())
	}
	if finish != llm.FinishReasonStop {
		t.Errorf("unexpected finish reason %q", finish)
	}
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// 返回顺序与输入相反，结果应按 index 重排
		_, _ = io.WriteString(w, `{"object":"list","model":"embed-model","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`)
	})

	out, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(out) != 2 || out[0][0] != 0.1 || out[1][0] != 0.3 {
		t.Errorf("unexpected embeddings %v", out)
	}

	empty, err := p.Embed(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty result for no input, got %v %v", empty, err)
	}
}
