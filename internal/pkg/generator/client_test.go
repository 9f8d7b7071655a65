package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func modelReply(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	resp := map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]string{"text": text}},
				},
			},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid path"))
			return
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		modelReply(t, w, "```json\n{\"slides\":[{\"title\":\"Intro\",\"bullets\":[\"a\"]},{\"title\":\"Two\"},{\"title\":\"Three\"}]}\n```")
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", "test-model", time.Second)
	slides, err := client.Generate(context.Background(), Request{Title: "Deck", Prompt: "go", SlideCount: 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(slides) != 2 || slides[0].Title != "Intro" || slides[0].Bullets[0] != "a" {
		t.Fatalf("unexpected slides: %+v", slides)
	}
}

func TestGenerateHTTPErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", "m", time.Second)
	_, err := client.Generate(context.Background(), Request{Title: "Deck", SlideCount: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=429") || !strings.Contains(err.Error(), "body=quota exceeded") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestGenerateEmptyDeck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, `{"slides":[]}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", "m", time.Second)
	_, err := client.Generate(context.Background(), Request{Title: "Deck", SlideCount: 3})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGenerateTimeoutClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", "m", 20*time.Millisecond)
	_, err := client.Generate(context.Background(), Request{Title: "Deck", SlideCount: 1})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "generator timeout") {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestGenerateWithoutKeyIsNotConfigured(t *testing.T) {
	client := NewClient("http://localhost", "", "m", time.Second)
	_, err := client.Generate(context.Background(), Request{SlideCount: 1})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
