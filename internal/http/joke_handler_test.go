package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"eventhub/internal/jokes"
	"eventhub/internal/provider"
)

func TestJokeRandom(t *testing.T) {
	env := newTestEnv(t)
	env.jokeFn = func(_ context.Context, name string, query url.Values, out any) error {
		if name != jokes.FunctionName {
			t.Errorf("unexpected function %q", name)
		}
		if query.Get("category") == "knock-knock" {
			return &provider.Error{Status: http.StatusNotFound, Message: "No jokes found"}
		}
		result := out.(*jokes.Result)
		*result = jokes.Result{
			Joke:       jokes.Joke{ID: "1", Content: "Why do programmers prefer dark mode?", Category: "programming"},
			Total:      3,
			Categories: []string{"programming"},
		}
		return nil
	}
	b := env.browser()

	rec := b.request(http.MethodGet, "/api/jokes/random?category=programming", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dark mode") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if b.cookie != nil {
		t.Fatal("expected jokes not to open a browser session")
	}

	if rec := b.request(http.MethodGet, "/api/jokes/random?category=knock-knock", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty category, got %d", rec.Code)
	}
	if rec := b.request(http.MethodGet, "/api/jokes/random?category=../etc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid category, got %d", rec.Code)
	}
}
