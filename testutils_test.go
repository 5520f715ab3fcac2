package webpic_test

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"webpic"

	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	ErrInvalidTestPath = errors.New("invalid path")
	ErrFake            = errors.New("fake failure")

	// Tags and other de-duplicated lists have no defined order.
	AnyOrder = cmpopts.SortSlices(func(a, b string) bool { return a < b })
)

// TestResponse represents a predefined response for a specific URI in the
// TestClient mock.
type TestResponse struct {
	data  []byte
	error error
}

// TestClient is a mock Client for use in tests.  It allows setting predefined
// responses for specific URIs, and falls back to reading from sample_data if no
// response is set.  Every request is recorded in order.
type TestClient struct {
	uris      map[string]TestResponse
	posts     map[string]TestResponse
	redirects map[string]string
	requests  []string
}

// NewTestClient creates a new TestClient instance with an empty set of
// predefined responses.
func NewTestClient() *TestClient {
	return &TestClient{
		uris:      make(map[string]TestResponse),
		posts:     make(map[string]TestResponse),
		redirects: make(map[string]string),
	}
}

// SetResponse sets a predefined response for the specified URI in the
// TestClient.
//
// Parameters:
//   - uri: The URI for which to set the response
//   - response: The byte slice to return when the URI is requested
//   - err: The error to return when the URI is requested (nil for no error)
func (t *TestClient) SetResponse(uri string, response []byte, err error) {
	t.uris[uri] = TestResponse{
		data:  response,
		error: err,
	}
}

// SetPostResponse sets the response for a JSON POST to uri whose body has the
// given "method" field.
func (t *TestClient) SetPostResponse(uri, method string, response []byte, err error) {
	t.posts[uri+"|"+method] = TestResponse{
		data:  response,
		error: err,
	}
}

// SetRedirect makes Resolve(from) return to.
func (t *TestClient) SetRedirect(from, to string) {
	t.redirects[from] = to
}

// Requests returns every URI requested so far, in order.
func (t *TestClient) Requests() []string {
	return t.requests
}

// Get simulates an HTTP GET request to the specified URI.  If a predefined
// response has been set for the URI, it returns that response.  Otherwise, it
// attempts to read the response data from a file in the sample_data directory.
// If the file does not exist, it returns ErrHTTPNotFound.
func (t *TestClient) Get(_ context.Context, uri string) ([]byte, error) {
	t.requests = append(t.requests, uri)
	if response, ok := t.uris[uri]; ok {
		return response.data, response.error
	}

	path := strings.TrimPrefix(uri, "https://")
	fn := filepath.Join("sample_data", path)
	// Prevent directory traversal attacks
	if fn != filepath.Clean(fn) {
		return nil, ErrInvalidTestPath
	}

	data, err := os.ReadFile(fn)
	switch {
	case err == nil:
		// continue
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("resource not found: %w", webpic.ErrHTTPNotFound)
	default:
		return nil, fmt.Errorf("failed to read file %s: %w", fn, err)
	}
	return data, nil
}

// Post looks the response up by URI and the "method" field of the body.
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
	response, ok := t.posts[uri+"|"+rpc.Method]
	if !ok {
		return nil, fmt.Errorf("resource not found: %w", webpic.ErrHTTPNotFound)
	}
	return response.data, response.error
}

// Resolve returns the configured redirect target, or uri itself.
func (t *TestClient) Resolve(_ context.Context, uri string) (string, error) {
	t.requests = append(t.requests, "RESOLVE "+uri)
	if to, ok := t.redirects[uri]; ok {
		if to == "" {
			return "", ErrFake
		}
		return to, nil
	}
	return uri, nil
}

// SleepSpy counts the pauses a Session makes instead of sleeping.
type SleepSpy struct {
	calls []time.Duration
}

func (s *SleepSpy) Sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

// NewTestSession returns a Session wired to client that never sleeps.
func NewTestSession(t *testing.T, client webpic.Client) (*webpic.Session, *SleepSpy) {
	t.Helper()
	spy := &SleepSpy{}
	session := webpic.NewSession(NewTestLogger(t), client)
	session.SetDelay(time.Millisecond, 2*time.Millisecond)
	session.SetSleepFunc(spy.Sleep)
	return session, spy
}

// ReadSample returns the contents of a sample_data file.
func ReadSample(t *testing.T, name string) []byte {
	t.Helper()
	//#nosec G304: filename is from test data
	data, err := os.ReadFile(filepath.Join("sample_data", name))
	if err != nil {
		t.Fatalf("failed to read sample %s: %v", name, err)
	}
	return data
}

// FakePixiv is an in-memory PixivAPI.
type FakePixiv struct {
	illusts   map[int64]*webpic.PixivIllust
	users     map[int64]*webpic.PixivUserDetail
	userPages map[int64][]webpic.PixivIllust
	pageSize  int
	userErr   error
	saved     map[string]string
}

func NewFakePixiv() *FakePixiv {
	return &FakePixiv{
		illusts:   make(map[int64]*webpic.PixivIllust),
		users:     make(map[int64]*webpic.PixivUserDetail),
		userPages: make(map[int64][]webpic.PixivIllust),
		pageSize:  30,
		saved:     make(map[string]string),
	}
}

func (f *FakePixiv) IllustDetail(_ context.Context, illustID int64) (*webpic.PixivIllust, error) {
	illust, ok := f.illusts[illustID]
	if !ok {
		return nil, fmt.Errorf("illust %d: %w", illustID, ErrFake)
	}
	return illust, nil
}

func (f *FakePixiv) UserDetail(_ context.Context, userID int64) (*webpic.PixivUserDetail, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	user, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrFake)
	}
	return user, nil
}

// UserIllusts pages through userPages like the app API does, with a next_url
// carrying the following offset.
func (f *FakePixiv) UserIllusts(_ context.Context, userID int64, offset int) (*webpic.PixivIllustList, error) {
	all := f.userPages[userID]
	if offset >= len(all) {
		return &webpic.PixivIllustList{}, nil
	}
	end := min(offset+f.pageSize, len(all))
	out := &webpic.PixivIllustList{Illusts: all[offset:end]}
	if end < len(all) {
		out.NextURL = fmt.Sprintf("https://app-api.pixiv.net/v1/user/illusts?user_id=%d&offset=%d", userID, end)
	}
	return out, nil
}

func (f *FakePixiv) Download(_ context.Context, fileURL, destPath string) (bool, error) {
	err := os.WriteFile(destPath, []byte(fileURL), 0600)
	if err != nil {
		return false, err
	}
	f.saved[destPath] = fileURL
	return true, nil
}

// FakeTwitter is an in-memory TwitterAPI.
type FakeTwitter struct {
	statuses map[string]*webpic.Tweet
	users    map[string]*webpic.TwitterUser
	// timelines are newest first, like the real API.
	timelines map[string][]webpic.Tweet
	pageCalls int
}

func NewFakeTwitter() *FakeTwitter {
	return &FakeTwitter{
		statuses:  make(map[string]*webpic.Tweet),
		users:     make(map[string]*webpic.TwitterUser),
		timelines: make(map[string][]webpic.Tweet),
	}
}

func (f *FakeTwitter) Status(_ context.Context, id string) (*webpic.Tweet, error) {
	status, ok := f.statuses[id]
	if !ok {
		return nil, fmt.Errorf("status %s: %w", id, ErrFake)
	}
	return status, nil
}

func (f *FakeTwitter) User(_ context.Context, screenName string) (*webpic.TwitterUser, error) {
	user, ok := f.users[strings.ToLower(screenName)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", screenName, ErrFake)
	}
	return user, nil
}

func (f *FakeTwitter) UserTimeline(_ context.Context, screenName, maxID string, count int) ([]webpic.Tweet, error) {
	f.pageCalls++
	count = min(count, 2)
	var out []webpic.Tweet
	for _, tweet := range f.timelines[screenName] {
		if maxID != "" && len(tweet.IDStr) == len(maxID) && tweet.IDStr > maxID {
			continue
		}
		out = append(out, tweet)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

// TestLogForwarder is an io.Writer that forwards log output to testing.T.Logf.
// This is used to capture application log output and report it in the test
// output.
type TestLogForwarder struct {
	t *testing.T
}

// Write implements the io.Writer interface for TestLogForwarder.  It forwards
// the log output to the testing.T instance.
func (t TestLogForwarder) Write(p []byte) (int, error) {
	t.t.Helper()

	// Get the caller info 5 levels up the stack to find the original log call.
	_, file, line, ok := runtime.Caller(5)
	if !ok {
		panic("unable to get caller info for test logger")
	}

	filename := filepath.Base(file)

	// t.Logf would report this file as the caller, so prepend the real one.
	t.t.Logf("%s:%d: %s", filename, line, p)

	return len(p), nil
}

// NewTestLogger creates a new slog.Logger that writes to the provided
// testing.T instance.  This allows capturing log output in test logs.
func NewTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	handler := slog.NewTextHandler(TestLogForwarder{t: t}, opts)
	return slog.New(handler)
}
