package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"
)

const (
	// Upper bound on pages fetched by a single ChildrenURLs call.  Only there
	// to stop a misbehaving site from looping forever.
	maxChildPages = 10000
)

// MediaItem is the normalized view of one page on a supported site.  It is
// populated once by Session.New and read through getters afterwards.
type MediaItem struct {
	logger *slog.Logger
	f      *fetcher
	site   adapter
	parts  *urlParts
	hint   *ArtistInfo

	url       string
	siteType  SiteType
	role      Role
	fileURLs  []string
	fileNames []string
	sourceURL string
	hasArtist bool
	artist    *ArtistInfo
	tags      []string
	tagSet    map[string]struct{}
}

func newMediaItem(f *fetcher, a adapter, rawURL string, site SiteType, role Role) *MediaItem {
	return &MediaItem{
		logger:    f.logger.With("url", rawURL),
		f:         f,
		site:      a,
		url:       rawURL,
		siteType:  site,
		role:      role,
		fileURLs:  []string{},
		fileNames: []string{},
		tags:      []string{},
		tagSet:    make(map[string]struct{}),
	}
}

// URL returns the URL the item was built from.
func (m *MediaItem) URL() string { return m.url }

// SiteType returns the site the item belongs to.
func (m *MediaItem) SiteType() SiteType { return m.siteType }

// Role returns whether the item is a parent or a child.
func (m *MediaItem) Role() Role { return m.role }

// IsParent reports whether the item is a collection page.
func (m *MediaItem) IsParent() bool { return m.role == RoleParent }

// IsChild reports whether the item is a single media page.
func (m *MediaItem) IsChild() bool { return m.role == RoleChild }

// FileURLs returns the direct media URLs, index-aligned with FileNames.
func (m *MediaItem) FileURLs() []string { return slices.Clone(m.fileURLs) }

// FileNames returns the local file names for FileURLs.
func (m *MediaItem) FileNames() []string { return slices.Clone(m.fileNames) }

// SourceURL returns the canonical permalink of the item, or its origin for
// tag boards.  It may be empty.
func (m *MediaItem) SourceURL() string { return m.sourceURL }

// HasArtist reports whether artist info was found.
func (m *MediaItem) HasArtist() bool { return m.hasArtist }

// ArtistInfo returns a copy of the artist info, or nil when HasArtist is
// false.
func (m *MediaItem) ArtistInfo() *ArtistInfo { return m.artist.Clone() }

// Tags returns the de-duplicated tags.  Order is not significant.
func (m *MediaItem) Tags() []string { return slices.Clone(m.tags) }

// IsEmpty reports whether extraction produced nothing at all.
func (m *MediaItem) IsEmpty() bool {
	return len(m.fileURLs) == 0 &&
		len(m.fileNames) == 0 &&
		m.sourceURL == "" &&
		!m.hasArtist &&
		len(m.tags) == 0
}

// Clear drops every extracted field.  It is safe to call more than once.
// URL, SiteType, and Role are kept.
func (m *MediaItem) Clear() {
	m.fileURLs = []string{}
	m.fileNames = []string{}
	m.sourceURL = ""
	m.hasArtist = false
	if m.artist != nil {
		m.artist.Clear()
	}
	m.artist = nil
	m.hint = nil
	m.tags = []string{}
	m.tagSet = make(map[string]struct{})
}

// ChildrenURLs enumerates the child URLs of a parent item, fetching pages
// strictly in order.
//
// Parameters:
//   - ctx: Context for cancellation
//   - limit: Maximum number of URLs to return; -1 means no limit
//
// Returns:
//   - []string: Up to limit child URLs in page order.  Empty for child items.
//   - error: Any fetch or parse error.  Pagination that reaches a recognized
//     end-of-data marker is not an error.
func (m *MediaItem) ChildrenURLs(ctx context.Context, limit int) ([]string, error) {
	if !m.IsParent() || limit == 0 {
		return []string{}, nil
	}
	if limit < 0 {
		limit = -1
	}

	c := newCollector(limit)
	err := m.site.children(ctx, m, c)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", m.url, err)
	}

	m.logger.Info("Listed children", "count", len(c.urls), "limit", limit)
	return c.urls, nil
}

// DownloadPic saves every file of the item.  If destPath is an existing
// directory the files keep their own names inside it.  Otherwise destPath is
// used as the file name, with _0, _1, ... inserted before the extension when
// there is more than one file.  Existing files are never overwritten.
//
// Parameters:
//   - ctx: Context for cancellation
//   - destPath: Target directory or file path
//
// Returns:
//   - []bool: One entry per file, true when the file was written
//   - error: The first fetch or write error.  The results cover the files
//     attempted before it.
func (m *MediaItem) DownloadPic(ctx context.Context, destPath string) ([]bool, error) {
	results := make([]bool, 0, len(m.fileURLs))
	for i, fileURL := range m.fileURLs {
		target, err := downloadTarget(destPath, m.fileNames[i], i, len(m.fileURLs))
		if err != nil {
			return append(results, false), err
		}

		_, err = os.Stat(target)
		if err == nil {
			m.logger.Info("File already exists, skipping", "file", target)
			results = append(results, false)
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return append(results, false), fmt.Errorf("failed to stat %s: %w", target, err)
		}

		saved, err := m.site.download(ctx, m, fileURL, target)
		if err != nil {
			return append(results, false), fmt.Errorf("failed to download %s: %w", fileURL, err)
		}
		if saved {
			m.logger.Info("Saved file", "file", target)
		}
		results = append(results, saved)
	}
	return results, nil
}

func (m *MediaItem) addFile(fileURL string) {
	m.fileURLs = append(m.fileURLs, fileURL)
	m.fileNames = append(m.fileNames, fileNameFromURL(fileURL))
}

func (m *MediaItem) addTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	if _, ok := m.tagSet[tag]; ok {
		return
	}
	m.tagSet[tag] = struct{}{}
	m.tags = append(m.tags, tag)
}

func (m *MediaItem) setArtist(info *ArtistInfo) {
	if info == nil {
		return
	}
	m.artist = info
	m.hasArtist = true
}

// artistOrLookup uses the caller's hint when there is one, otherwise extracts
// the artist from profileURL.
func (m *MediaItem) artistOrLookup(ctx context.Context, profileURL string) (*ArtistInfo, error) {
	if m.hint != nil {
		return m.hint, nil
	}
	return m.f.extractArtist(ctx, m.siteType, profileURL)
}

// pageURL is the normalized form of URL, always with a scheme.
func (m *MediaItem) pageURL() string {
	return m.parts.u.String()
}

// urlParts is a parsed page URL with its path split into segments.
type urlParts struct {
	u        *url.URL
	host     string
	path     string
	segments []string
	query    url.Values
}

func splitURL(rawURL string) (*urlParts, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return &urlParts{
		u:        u,
		host:     strings.ToLower(u.Hostname()),
		path:     u.Path,
		segments: segments,
		query:    u.Query(),
	}, nil
}

// last returns the last path segment, or "".
func (p *urlParts) last() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// collector accumulates child URLs up to a limit, dropping duplicates.
type collector struct {
	limit int
	urls  []string
	seen  map[string]struct{}
}

func newCollector(limit int) *collector {
	return &collector{
		limit: limit,
		urls:  []string{},
		seen:  make(map[string]struct{}),
	}
}

// full reports whether the limit has been reached.
func (c *collector) full() bool {
	return c.limit >= 0 && len(c.urls) >= c.limit
}

// add records u and reports whether it was new.  Nothing is added once the
// collector is full.
func (c *collector) add(u string) bool {
	if c.full() || u == "" {
		return false
	}
	if _, ok := c.seen[u]; ok {
		return false
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
	return true
}

// fileNameFromURL returns the sanitized base name of the URL path.
func fileNameFromURL(fileURL string) string {
	name := fileURL
	u, err := url.Parse(fileURL)
	if err == nil {
		name = u.Path
	}
	// Twitter media carry a ":orig" style size suffix.
	name = path.Base(name)
	if i := strings.LastIndex(name, ":"); i > 0 {
		name = name[:i]
	}
	return SanitizeFileName(name)
}
