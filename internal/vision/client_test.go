package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDescribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-vision" {
			t.Errorf("expected model test-vision, got %q", req.Model)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with text+image parts, got %+v", req.Messages)
		}
		if req.Messages[0].Content[1].ImageURL == nil || req.Messages[0].Content[1].ImageURL.URL != "data:image/png;base64,AAA" {
			t.Errorf("image url not forwarded: %+v", req.Messages[0].Content[1])
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "скриншот поддельного банковского сайта"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-vision")
	c.SetTestTransport(server.URL)

	desc, err := c.Describe(context.Background(), "data:image/png;base64,AAA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc != "скриншот поддельного банковского сайта" {
		t.Errorf("unexpected description: %q", desc)
	}
}

func TestDescribe_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad image"}}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-vision")
	c.SetTestTransport(server.URL)

	if _, err := c.Describe(context.Background(), "not-an-image"); err == nil {
		t.Fatal("expected error for API error response")
	}
}
