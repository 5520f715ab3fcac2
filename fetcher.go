package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
)

// fetcher is the Session as seen by one item: every request goes through it
// so the delay is honored before each one, including nested artist lookups
// and pagination.
type fetcher struct {
	logger *slog.Logger
	s      *Session
	bounds DelayBounds
}

func (s *Session) newFetcher(site SiteType, override *DelayBounds) *fetcher {
	bounds := DefaultDelay(site)
	switch {
	case override != nil:
		bounds = *override
	case s.delay != nil:
		bounds = *s.delay
	}
	return &fetcher{
		logger: s.logger.With("site", site.String()),
		s:      s,
		bounds: bounds,
	}
}

// pause waits a random time within the bounds.  Call it before every request
// that does not go through get, post, or resolve.
func (f *fetcher) pause(ctx context.Context) error {
	d := f.bounds.pick()
	if d <= 0 {
		return ctx.Err()
	}
	return f.s.sleep(ctx, d)
}

func (f *fetcher) get(ctx context.Context, uri string) ([]byte, error) {
	err := f.pause(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Fetching", "uri", uri)
	data, err := f.s.client.Get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	return data, nil
}

func (f *fetcher) getJSON(ctx context.Context, uri string, v any) error {
	data, err := f.get(ctx, uri)
	if err != nil {
		return err
	}
	return decodeJSON(uri, data, v)
}

func (f *fetcher) getDocument(ctx context.Context, uri string) (*goquery.Document, error) {
	data, err := f.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return parseHTML(uri, data)
}

func (f *fetcher) postJSON(ctx context.Context, uri string, body any, v any) error {
	err := f.pause(ctx)
	if err != nil {
		return err
	}
	f.logger.Debug("Posting", "uri", uri)
	data, err := f.s.client.Post(ctx, uri, body)
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", uri, err)
	}
	return decodeJSON(uri, data, v)
}

func (f *fetcher) resolve(ctx context.Context, uri string) (string, error) {
	err := f.pause(ctx)
	if err != nil {
		return "", err
	}
	f.logger.Debug("Resolving", "uri", uri)
	return f.s.client.Resolve(ctx, uri)
}

func (f *fetcher) pixivAPI() (PixivAPI, error) {
	if f.s.pixiv == nil {
		return nil, fmt.Errorf("%w: pixiv", ErrAPIUnavailable)
	}
	return f.s.pixiv, nil
}

func (f *fetcher) twitterAPI() (TwitterAPI, error) {
	if f.s.twitter == nil {
		return nil, fmt.Errorf("%w: twitter", ErrAPIUnavailable)
	}
	return f.s.twitter, nil
}

func parseHTML(uri string, data []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML from %s: %w", ErrUnparseableDocument, uri, err)
	}
	return doc, nil
}
