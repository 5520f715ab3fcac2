package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	// The core never retries.  Callers who want retries opt in with
	// SetRetryPolicy.
	defaultTryCount      = 1
	defaultRetryInterval = 5 * time.Second

	httpTimeout   = 90 * time.Second
	httpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// Number of tab-separated fields in a Netscape/Mozilla cookies.txt file.
	cookiesTxtFieldCount = 7

	oneWeekDuration = 7 * 24 * time.Hour
)

var (
	ErrHTTPStatusNotOK = errors.New("HTTP request failed with non-200 status")
	ErrHTTPNotFound    = errors.New("HTTP 404 Not Found")
	ErrExpiredCookie   = errors.New("cookie is expiring, update your cookies.txt file")
	ErrInvalidCookie   = errors.New("invalid cookie format")
)

// Client is an abstract HTTP client.  In prod, this is an HTTPClient.  In
// test, it is a TestClient mock.
type Client interface {
	// Get fetches uri and returns the body of a 200 response.
	Get(ctx context.Context, uri string) ([]byte, error)
	// Post sends body as JSON to uri and returns the body of a 200 response.
	Post(ctx context.Context, uri string, body any) ([]byte, error)
	// Resolve follows redirects from uri and returns the final URL.
	Resolve(ctx context.Context, uri string) (string, error)
}

// HTTPClient is a concrete implementation of the Client interface backed by
// resty.  It keeps a cookie jar so cookies.txt logins work across sites.
type HTTPClient struct {
	logger  *slog.Logger
	client  *resty.Client
	jar     http.CookieJar
	limiter *rate.Limiter
}

// NewHTTPClient creates a new HTTPClient with no retries and no request rate
// limit.  Inter-request jitter is applied by the Session, not here.
//
// Parameters:
//   - logger: Logger instance
//
// Returns:
//   - *HTTPClient: A new HTTPClient instance ready for use
func NewHTTPClient(logger *slog.Logger) *HTTPClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		// cookiejar.New never returns an error as of Go 1.23.
		fatalInvariant(fmt.Errorf("failed to create cookie jar: %w", err))
	}

	h := &HTTPClient{
		logger:  logger,
		jar:     jar,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}

	h.client = resty.New().
		SetTimeout(httpTimeout).
		SetCookieJar(jar).
		SetHeader("User-Agent", httpUserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	h.client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		return h.limiter.Wait(r.Context())
	})
	h.SetRetryPolicy(defaultTryCount, defaultRetryInterval)

	return h
}

// SetRetryPolicy configures how many times a request is tried before giving
// up.  Only transport errors and 5xx responses are retried.
//
// Parameters:
//   - count: Total number of attempts, at least 1
//   - interval: Time to wait between attempts
func (h *HTTPClient) SetRetryPolicy(count int, interval time.Duration) {
	if count < 1 {
		count = 1
	}
	h.client.
		SetRetryCount(count - 1).
		SetRetryWaitTime(interval).
		SetRetryMaxWaitTime(interval)
}

// SetRateLimit caps the number of requests per second across all hosts.  A
// zero or negative limit removes the cap.
//
// Parameters:
//   - perSecond: Sustained requests per second
//   - burst: Maximum burst size
func (h *HTTPClient) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		h.limiter.SetLimit(rate.Inf)
		return
	}
	if burst < 1 {
		burst = 1
	}
	h.limiter.SetLimit(rate.Limit(perSecond))
	h.limiter.SetBurst(burst)
}

// LoadCookies loads cookies from a Netscape/Mozilla format cookies.txt file and
// adds them to the client's cookie jar.  This allows access to pages only
// available to logged-in users, such as restricted e-hentai galleries.
//
// The method parses the "standard" cookies.txt format with tab-separated
// fields: domain, flag, path, secure, expiration, name, value
//
// Parameters:
//   - filename: Path to the cookies.txt file to load
//
// Returns:
//   - error: Any error encountered while reading or parsing the cookies file
func (h *HTTPClient) LoadCookies(filename string) error {
	//#nosec G304: filename is intentionally from user input
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open cookies file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		err := h.parseCookieLine(line)
		if err != nil {
			return fmt.Errorf("failed to load cookie: %w", err)
		}
	}

	err = scanner.Err()
	if err != nil {
		return fmt.Errorf("error reading cookies file: %w", err)
	}

	h.logger.Info("Loaded cookies from file", "file", filename)
	return nil
}

// Get performs an HTTP GET request.
//
// Parameters:
//   - ctx: Context for cancellation
//   - uri: The URL to fetch
//
// Returns:
//   - []byte: The response body content
//   - error: ErrHTTPNotFound, ErrHTTPStatusNotOK, or a transport error
func (h *HTTPClient) Get(ctx context.Context, uri string) ([]byte, error) {
	h.logger.Debug("HTTPClient GET", "uri", uri)
	resp, err := h.client.R().SetContext(ctx).Get(uri)
	if err != nil {
		return nil, fmt.Errorf("GET failed: %w", err)
	}
	return checkResponse(resp)
}

// Post sends body encoded as JSON.
//
// Parameters:
//   - ctx: Context for cancellation
//   - uri: The URL to post to
//   - body: Any value encoding/json can marshal
//
// Returns:
//   - []byte: The response body content
//   - error: ErrHTTPNotFound, ErrHTTPStatusNotOK, or a transport error
func (h *HTTPClient) Post(ctx context.Context, uri string, body any) ([]byte, error) {
	h.logger.Debug("HTTPClient POST", "uri", uri)
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(uri)
	if err != nil {
		return nil, fmt.Errorf("POST failed: %w", err)
	}
	return checkResponse(resp)
}

// Resolve follows redirects starting at uri and returns the URL of the final
// response.  The status of the final response is not checked.
func (h *HTTPClient) Resolve(ctx context.Context, uri string) (string, error) {
	h.logger.Debug("HTTPClient resolve", "uri", uri)
	resp, err := h.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(uri)
	if err != nil {
		return "", fmt.Errorf("GET failed: %w", err)
	}
	defer func() { _ = resp.RawBody().Close() }()

	return resp.RawResponse.Request.URL.String(), nil
}

func checkResponse(resp *resty.Response) ([]byte, error) {
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("resource not found: %w", ErrHTTPNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrHTTPStatusNotOK, resp.Status())
	}
	return resp.Body(), nil
}

// decodeJSON unmarshals a fetched body, attributing failures to uri.
func decodeJSON(uri string, data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnparseableDocument, uri, err)
	}
	return nil
}

// parseCookieLine parses a single line from a cookies.txt file and adds the
// cookie to the client's cookie jar.
//
// Parameters:
//   - line: A single line from a cookies.txt file
func (h *HTTPClient) parseCookieLine(line string) error {
	// Skip comments and empty lines.  HttpOnly cookies are commented out
	// with a special prefix and must be kept.
	line = strings.TrimPrefix(line, "#HttpOnly_")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	// Parse cookie line format: domain	flag	path	secure	expiration	name	value
	parts := strings.Split(line, "\t")
	if len(parts) != cookiesTxtFieldCount {
		return fmt.Errorf("%w: %v", ErrInvalidCookie, line)
	}

	domain := parts[0]
	path := parts[2]
	secure := strings.ToUpper(parts[3]) == "TRUE"
	expiration := parts[4]
	name := parts[5]
	value := parts[6]

	// Session cookies have an expiration of 0 and are always accepted.
	// Anything else that expires within a week aborts, so a long run doesn't
	// silently lose access halfway through.
	expireTime, err := strconv.ParseInt(expiration, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiration time for cookie %s: %w", name, err)
	}
	if expireTime != 0 {
		cookieExpire := time.Unix(expireTime, 0)
		oneWeekFromNow := time.Now().Add(oneWeekDuration)
		if cookieExpire.Before(oneWeekFromNow) {
			return fmt.Errorf("%w: %s", ErrExpiredCookie, name)
		}
	}

	scheme := "http"
	if secure {
		scheme = "https"
	}

	cookieURL, err := url.Parse(
		fmt.Sprintf("%s://%s%s", scheme, strings.TrimPrefix(domain, "."), path))
	if err != nil {
		return fmt.Errorf("invalid URL for cookie %s: %w", name, err)
	}

	cookie := &http.Cookie{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   path,
	}

	h.jar.SetCookies(cookieURL, []*http.Cookie{cookie})
	return nil
}
