// Package webpic classifies image-site URLs and extracts their media, tags,
// and artist details through one uniform MediaItem.
package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrUnknownSite         = errors.New("URL does not belong to a supported site")
	ErrWrongDomain         = errors.New("URL does not belong to this site")
	ErrCannotDetermineRole = errors.New("cannot determine parent or child from URL")
	ErrUpstream            = errors.New("remote service reported failure")
	ErrUnparseableDocument = errors.New("expected data missing from document")
	ErrBadURL              = errors.New("item does not exist or is not visible")
	ErrNamesRequired       = errors.New("artist info for this site is built from names, not a URL")
	ErrAPIUnavailable      = errors.New("authenticated API client not configured")
)

// adapter is what each site implements.  A fresh adapter is built for every
// MediaItem so it can hold per-item state such as ids.
type adapter interface {
	// classify picks the role from the URL shape alone.
	classify(u *urlParts) Role
	// extract fetches the item and fills in the MediaItem.
	extract(ctx context.Context, item *MediaItem) error
	// children appends child URLs of a parent item to c.
	children(ctx context.Context, item *MediaItem, c *collector) error
	// download saves one file.  It returns false when nothing was written.
	download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error)
}

var adapterRegistry = map[SiteType]func() adapter{
	Pixiv:    func() adapter { return &pixivSite{} },
	Twitter:  func() adapter { return &twitterSite{} },
	Danbooru: func() adapter { return &danbooruSite{} },
	Yandere:  func() adapter { return newMoebooruSite(yandereBoard) },
	Konachan: func() adapter { return newMoebooruSite(konachanBoard) },
	Weibo:    func() adapter { return &weiboSite{} },
	EHentai:  func() adapter { return &ehentaiSite{} },
}

// Session carries the collaborators every item needs: the HTTP port, the two
// authenticated API clients, and the delay policy.  A Session is not safe for
// concurrent use by multiple goroutines.
type Session struct {
	logger  *slog.Logger
	client  Client
	pixiv   PixivAPI
	twitter TwitterAPI
	delay   *DelayBounds
	sleep   SleepFunc
}

// NewSession creates a Session with per-site default delays and no
// authenticated API clients.  Pixiv and Twitter items fail with
// ErrAPIUnavailable until SetPixivAPI/SetTwitterAPI are called.
//
// Parameters:
//   - logger: Logger instance
//   - client: HTTP client used for every unauthenticated fetch
//
// Returns:
//   - *Session: A new Session ready for use
func NewSession(logger *slog.Logger, client Client) *Session {
	return &Session{
		logger: logger,
		client: client,
		sleep:  sleepContext,
	}
}

// SetPixivAPI injects the authenticated pixiv client.
func (s *Session) SetPixivAPI(api PixivAPI) {
	s.pixiv = api
}

// SetTwitterAPI injects the authenticated twitter client.
func (s *Session) SetTwitterAPI(api TwitterAPI) {
	s.twitter = api
}

// SetDelay overrides the per-site default delay bounds for every request made
// through this Session.
func (s *Session) SetDelay(minDelay, maxDelay time.Duration) {
	s.delay = &DelayBounds{Min: minDelay, Max: maxDelay}
}

// SetSleepFunc replaces the function used to wait between requests.  This is
// intended to inject test spies instead of sleeping.
func (s *Session) SetSleepFunc(fn SleepFunc) {
	s.sleep = fn
}

// Option customizes a single URL2WebPic or New call.
type Option func(*options)

type options struct {
	artist *ArtistInfo
	delay  *DelayBounds
}

// WithArtistInfo supplies artist info already known to the caller, usually
// from the parent item.  Child items use a copy of it instead of fetching the
// artist profile again.
func WithArtistInfo(info *ArtistInfo) Option {
	return func(o *options) {
		o.artist = info
	}
}

// WithDelay overrides the delay bounds for this item, including its artist
// lookups and child enumeration.
func WithDelay(minDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.delay = &DelayBounds{Min: minDelay, Max: maxDelay}
	}
}

// URL2WebPic classifies rawURL and builds a MediaItem with the matching site
// adapter.  All network fetches needed to populate the item happen here.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rawURL: Any URL from a supported site
//   - opts: Optional artist hint and delay override
//
// Returns:
//   - *MediaItem: The populated item
//   - error: ErrUnknownSite for unsupported URLs, otherwise any extraction error
func (s *Session) URL2WebPic(ctx context.Context, rawURL string, opts ...Option) (*MediaItem, error) {
	site := Classify(rawURL)
	if site == Unknown {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, rawURL)
	}
	return s.New(ctx, site, rawURL, opts...)
}

// New builds a MediaItem for rawURL using the adapter for site.
//
// Parameters:
//   - ctx: Context for cancellation
//   - site: The site rawURL is expected to belong to
//   - rawURL: The page URL
//   - opts: Optional artist hint and delay override
//
// Returns:
//   - *MediaItem: The populated item
//   - error: ErrWrongDomain if rawURL is not on site, ErrCannotDetermineRole if
//     the URL shape is unrecognized, or any extraction error.  Every error
//     names rawURL.
func (s *Session) New(ctx context.Context, site SiteType, rawURL string, opts ...Option) (*MediaItem, error) {
	newAdapter, ok := adapterRegistry[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, rawURL)
	}
	if Classify(rawURL) != site {
		return nil, fmt.Errorf("%w: %s is not a %s URL", ErrWrongDomain, rawURL, site)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	parts, err := splitURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCannotDetermineRole, rawURL, err)
	}

	a := newAdapter()
	role := a.classify(parts)
	if role == RoleUnknown {
		return nil, fmt.Errorf("%w: %s", ErrCannotDetermineRole, rawURL)
	}

	item := newMediaItem(s.newFetcher(site, o.delay), a, rawURL, site, role)
	item.parts = parts
	if role == RoleChild {
		item.hint = o.artist.Clone()
	}

	err = a.extract(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", rawURL, err)
	}

	s.logger.Info("Extracted item",
		"site", site, "role", role, "url", rawURL,
		"files", len(item.fileURLs), "tags", len(item.tags), "hasArtist", item.hasArtist)
	return item, nil
}

// fatalInvariant intentionally panics when a fundamental assumption is broken.
// It is used only where an error cannot happen unless the program itself is
// wrong.
func fatalInvariant(message any) {
	panic(message)
}
