package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected test-model, got %q", req.Model)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object format, got %q", req.ResponseFormat.Type)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
			t.Fatalf("unexpected messages %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content, "string fields: explanation") {
			t.Errorf("expected output fields in system prompt, got %q", req.Messages[0].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": `{"explanation":"simple da"}`},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", server.URL+"/v1")
	got, err := c.CompleteJSON(context.Background(), "be brief", "hello", []string{"explanation"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"explanation":"simple da"}` {
		t.Errorf("unexpected content %q", got)
	}
}

func TestCompleteJSON_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c := NewClient("wrong", "test-model", server.URL+"/v1")
	if _, err := c.CompleteJSON(context.Background(), "", "hi", nil); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestCompleteJSON_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	c := NewClient("k", "m", server.URL+"/v1")
	if _, err := c.CompleteJSON(context.Background(), "", "hi", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
