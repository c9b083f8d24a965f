package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchAPIParsesOrganicResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("engine"); got != "google" {
			t.Errorf("expected engine=google, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang concurrency" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("unexpected api key %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"organic_results": [
				{"title": "Go Concurrency Patterns", "link": "https://go.dev/blog/pipelines", "snippet": "Pipelines and cancellation."},
				{"title": "Effective Go", "link": "https://go.dev/doc/effective_go", "snippet": "Share memory by communicating."}
			]
		}`))
	}))
	defer server.Close()

	provider := NewSearchAPI("test-key")
	provider.BaseURL = server.URL

	results, err := provider.Search(context.Background(), "golang concurrency", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Go Concurrency Patterns" || results[0].URL != "https://go.dev/blog/pipelines" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearchAPIClampsResultCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("num"); got != "10" {
			t.Errorf("expected num clamped to 10, got %q", got)
		}
		_, _ = w.Write([]byte(`{"organic_results": []}`))
	}))
	defer server.Close()

	provider := NewSearchAPI("test-key")
	provider.BaseURL = server.URL

	results, err := provider.Search(context.Background(), "q", 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchAPIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewSearchAPI("test-key")
	provider.BaseURL = server.URL

	if _, err := provider.Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSearchAPIMissingKey(t *testing.T) {
	provider := NewSearchAPI("")
	if _, err := provider.Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
