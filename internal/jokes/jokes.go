// Package jokes fetches random jokes from the provider's random-joke edge
// function.
package jokes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"eventhub/internal/provider"
)

// FunctionName is the edge function serving jokes.
const FunctionName = "random-joke"

var (
	// ErrInvalidCategory is returned for category names the function cannot hold.
	ErrInvalidCategory = errors.New("category must be 1-32 letters, digits or dashes")
	// ErrNotFound is returned when the requested category has no jokes.
	ErrNotFound = errors.New("no jokes found for that category")
)

// Joke is a single joke.
type Joke struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Result is the function's response.
type Result struct {
	Joke       Joke     `json:"joke"`
	Total      int      `json:"total"`
	Categories []string `json:"categories"`
}

// Invoker calls an edge function and decodes its JSON response.
type Invoker interface {
	InvokeFunction(ctx context.Context, name string, query url.Values, out any) error
}

// Service performs joke lookups.
type Service struct {
	functions Invoker
}

// NewService constructs a Service.
func NewService(functions Invoker) *Service {
	return &Service{functions: functions}
}

// Random returns a random joke, restricted to category when it is not empty.
func (s *Service) Random(ctx context.Context, category string) (Result, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	query := url.Values{}
	if category != "" {
		if !validCategory(category) {
			return Result{}, ErrInvalidCategory
		}
		query.Set("category", category)
	}

	var result Result
	if err := s.functions.InvokeFunction(ctx, FunctionName, query, &result); err != nil {
		if provider.IsNotFound(err) && category != "" {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("invoke %s: %w", FunctionName, err)
	}
	if result.Joke.Content == "" {
		return Result{}, ErrNotFound
	}
	if result.Categories == nil {
		result.Categories = []string{}
	}
	return result, nil
}

func validCategory(value string) bool {
	if len(value) > 32 {
		return false
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
