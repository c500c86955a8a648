package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestStorageUploadPostsObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/storage/v1/object/avatars/avatars/u-1.png" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != "png-bytes" {
			t.Errorf("unexpected body %q", data)
		}
		_, _ = w.Write([]byte(`{"Key":"avatars/avatars/u-1.png"}`))
	}))
	defer server.Close()

	storage := New(server.URL, "anon").Storage(nil)
	if err := storage.Upload(context.Background(), "avatars", "avatars/u-1.png", "image/png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
}

func TestStorageUploadReturnsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"statusCode":"413","error":"Payload too large","message":"The object exceeded the maximum allowed size"}`))
	}))
	defer server.Close()

	storage := New(server.URL, "anon").Storage(nil)
	err := storage.Upload(context.Background(), "avatars", "a.png", "image/png", strings.NewReader("x"))
	if UserMessage(err) != "The object exceeded the maximum allowed size" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestStoragePublicURL(t *testing.T) {
	storage := New("https://project.example.co/", "anon").Storage(nil)
	got := storage.PublicURL("avatars", "avatars/u 1.png")
	want := "https://project.example.co/storage/v1/object/public/avatars/avatars/u%201.png"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestInvokeFunctionDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/random-joke" || r.URL.Query().Get("category") != "tech" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"joke":"It works on my machine."}`))
	}))
	defer server.Close()

	var out struct {
		Joke string `json:"joke"`
	}
	client := New(server.URL, "anon")
	if err := client.InvokeFunction(context.Background(), "random-joke", url.Values{"category": {"tech"}}, &out); err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out.Joke != "It works on my machine." {
		t.Fatalf("unexpected joke %q", out.Joke)
	}
}
