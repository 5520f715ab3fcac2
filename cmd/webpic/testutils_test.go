package main_test

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"webpic"
)

// TestClient serves predefined responses, falling back to the library's
// sample_data directory.
type TestClient struct {
	uris     map[string][]byte
	posts    map[string][]byte
	requests []string
}

func NewTestClient() *TestClient {
	return &TestClient{
		uris:  make(map[string][]byte),
		posts: make(map[string][]byte),
	}
}

func (t *TestClient) SetResponse(uri string, data []byte) {
	t.uris[uri] = data
}

func (t *TestClient) Get(_ context.Context, uri string) ([]byte, error) {
	t.requests = append(t.requests, uri)
	if data, ok := t.uris[uri]; ok {
		return data, nil
	}

	fn := filepath.Join("..", "..", "sample_data", strings.TrimPrefix(uri, "https://"))
	//#nosec G304: filename is from test data
	data, err := os.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("resource not found: %w", webpic.ErrHTTPNotFound)
	}
	return data, err
}

// SetPostResponse answers POSTs to uri whose JSON body carries method.
func (t *TestClient) SetPostResponse(uri, method string, data []byte) {
	t.posts[uri+"|"+method] = data
}

func (t *TestClient) Post(_ context.Context, uri string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var rpc struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(encoded, &rpc)

	t.requests = append(t.requests, "POST "+uri+" "+rpc.Method)
	if data, ok := t.posts[uri+"|"+rpc.Method]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("resource not found: %w", webpic.ErrHTTPNotFound)
}

func (t *TestClient) Resolve(_ context.Context, uri string) (string, error) {
	return uri, nil
}

// NewTestSession returns a Session on client that never sleeps.
func NewTestSession(t *testing.T, client webpic.Client) *webpic.Session {
	t.Helper()
	session := webpic.NewSession(NewTestLogger(t), client)
	session.SetSleepFunc(func(context.Context, time.Duration) error { return nil })
	return session
}

// TestLogForwarder is an io.Writer that forwards log output to testing.T.Logf.
type TestLogForwarder struct {
	t *testing.T
}

func (t TestLogForwarder) Write(p []byte) (int, error) {
	t.t.Helper()
	t.t.Logf("%s", p)
	return len(p), nil
}

// NewTestLogger creates a new slog.Logger that writes to the provided
// testing.T instance.
func NewTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	return slog.New(slog.NewTextHandler(TestLogForwarder{t: t}, opts))
}
