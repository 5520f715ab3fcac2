package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

type danbooruSite struct {
	pageURL *url.URL
}

func (d *danbooruSite) classify(u *urlParts) Role {
	d.pageURL = u.u
	if len(u.segments) == 0 || u.segments[0] != "posts" {
		return RoleUnknown
	}
	if len(u.segments) == 1 {
		return RoleParent
	}
	return RoleChild
}

func (d *danbooruSite) extract(ctx context.Context, item *MediaItem) error {
	doc, err := item.f.getDocument(ctx, item.pageURL())
	if err != nil {
		return err
	}

	artistSelector := "a.artist-excerpt-link"
	if item.IsChild() {
		artistSelector = ".artist-tag-list a.wiki-link"
	}
	if href, ok := doc.Find(artistSelector).First().Attr("href"); ok {
		artist, err := item.artistOrLookup(ctx, absoluteURL(Danbooru, href))
		if err != nil {
			return err
		}
		item.setArtist(artist)
	}

	if item.IsChild() {
		fileURL, ok := doc.Find("#post-info-size a[href]").First().Attr("href")
		if !ok {
			return fmt.Errorf("%w: no file link", ErrUnparseableDocument)
		}
		item.addFile(absoluteURL(Danbooru, fileURL))

		source, _ := doc.Find("#post-info-source a[href]").First().Attr("href")
		item.sourceURL = normalizeSourceURL(source)
	}

	doc.Find("[data-tag-name]").Each(func(_ int, s *goquery.Selection) {
		tag, _ := s.Attr("data-tag-name")
		item.addTag(tag)
	})
	return nil
}

func (d *danbooruSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	for page := 1; page <= maxChildPages; page++ {
		pageURL := withQuery(d.pageURL, "page", strconv.Itoa(page))
		doc, err := item.f.getDocument(ctx, pageURL)
		if err != nil {
			return err
		}

		ids := doc.Find("[data-id]")
		if ids.Length() == 0 {
			return nil
		}
		ids.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("data-id")
			c.add(fmt.Sprintf("https://%s/posts/%s", Danbooru.Domain(), id))
			return !c.full()
		})
		if c.full() {
			return nil
		}
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

func (d *danbooruSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	return downloadHTTP(ctx, item, fileURL, target)
}

// absoluteURL resolves a site-relative link against the site's domain.
func absoluteURL(site SiteType, href string) string {
	base := &url.URL{Scheme: "https", Host: site.Domain(), Path: "/"}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// withQuery returns u with key set to value, leaving other parameters alone.
func withQuery(u *url.URL, key, value string) string {
	next := *u
	q := next.Query()
	q.Set(key, value)
	next.RawQuery = q.Encode()
	return next.String()
}
