package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// StorageClient is the object-storage sub-interface.
type StorageClient struct {
	client *Client
	tokens func(ctx context.Context) oauth2.TokenSource
}

// Storage returns the storage handle authenticated as the user on auth.
func (c *Client) Storage(auth *AuthClient) *StorageClient {
	tokens := func(context.Context) oauth2.TokenSource { return c.anonTokens() }
	if auth != nil {
		tokens = auth.TokenSource
	}
	return &StorageClient{client: c, tokens: tokens}
}

// Upload stores body at path inside bucket. Existing objects are not overwritten.
func (s *StorageClient) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) error {
	header := http.Header{"x-upsert": {"false"}}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return s.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/" + escapePath(bucket) + "/" + escapePath(path),
		header: header,
		raw:    body,
		tokens: s.tokens(ctx),
	}, nil)
}

// PublicURL returns the publicly reachable URL of an object in a public bucket.
func (s *StorageClient) PublicURL(bucket, path string) string {
	return s.client.baseURL + "/storage/v1/object/public/" + escapePath(bucket) + "/" + escapePath(path)
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
