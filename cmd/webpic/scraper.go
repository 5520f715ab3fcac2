package main

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"webpic"
)

const (
	// Name of the directory used when an item has no known artist.
	unknownArtistDir = "_unknown"
	// A parent listing parents, such as an e-hentai search listing
	// galleries, is expanded this many levels.
	maxNestedParents = 1
)

// Scraper walks the URLs given on the command line.  Child URLs are downloaded
// directly.  Parent URLs are expanded into their children, which inherit the
// parent's artist info and are downloaded in turn.  Children that are parents
// themselves are expanded one more level.
type Scraper struct {
	logger    *slog.Logger
	session   *webpic.Session
	out       io.Writer
	outputDir string
	limit     int
	infoOnly  bool
}

// NewScraper creates a new Scraper instance.
//
// Parameters:
//   - logger: Logger instance for writing log messages
//   - session: Session used to open every URL
//   - out: Where item details are printed in info-only mode
//   - outputDir: Base directory; files go under <site>/<artist>/
//   - limit: Children per parent, 0 for all
//   - infoOnly: Print item details instead of downloading
//
// Returns:
//   - *Scraper: A new Scraper instance ready for use
func NewScraper(
	logger *slog.Logger,
	session *webpic.Session,
	out io.Writer,
	outputDir string,
	limit int,
	infoOnly bool,
) *Scraper {
	if limit <= 0 {
		limit = -1
	}
	return &Scraper{
		logger:    logger,
		session:   session,
		out:       out,
		outputDir: outputDir,
		limit:     limit,
		infoOnly:  infoOnly,
	}
}

// Run opens each URL in order.  A URL that cannot be opened stops the run.
// A child of a parent URL that cannot be opened is logged and skipped.
//
// Returns:
//   - error: The first error for a top level URL, nil on success
func (s *Scraper) Run(ctx context.Context, urls []string) error {
	s.logger.Debug("Scraper.Run called")
	s.logger.Info("Scraper running with config",
		"urls", len(urls), "limit", s.limit, "infoOnly", s.infoOnly, "outputDir", s.outputDir)

	for _, u := range urls {
		item, err := s.session.URL2WebPic(ctx, u)
		if err != nil {
			return err
		}

		if item.IsChild() {
			err := s.handle(ctx, item, s.artistDir(item))
			if err != nil {
				return err
			}
			continue
		}

		err = s.crawl(ctx, item, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// crawl handles every child of parent.  Children share the parent's
// directory so a gallery stays together.  depth counts the parents above
// this one.
func (s *Scraper) crawl(ctx context.Context, parent *webpic.MediaItem, depth int) error {
	if s.infoOnly {
		s.print(parent)
	}

	children, err := parent.ChildrenURLs(ctx, s.limit)
	if err != nil {
		return err
	}
	s.logger.Info("Found children", "parent", parent.URL(), "count", len(children))

	dir := s.artistDir(parent)
	var opts []webpic.Option
	if parent.HasArtist() {
		opts = append(opts, webpic.WithArtistInfo(parent.ArtistInfo()))
	}

	for _, childURL := range children {
		child, err := s.session.URL2WebPic(ctx, childURL, opts...)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			s.logger.Warn("Skipping child", "url", childURL, "error", err)
			continue
		}

		if child.IsParent() {
			if depth >= maxNestedParents {
				s.logger.Warn("Skipping nested parent", "url", childURL, "parent", parent.URL())
				continue
			}
			err = s.crawl(ctx, child, depth+1)
			switch {
			case errors.Is(err, context.Canceled):
				return err
			case err != nil:
				s.logger.Warn("Skipping nested parent", "url", childURL, "error", err)
			}
			continue
		}

		err = s.handle(ctx, child, dir)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) handle(ctx context.Context, item *webpic.MediaItem, dir string) error {
	if s.infoOnly {
		s.print(item)
		return nil
	}

	saved, err := item.DownloadPic(ctx, dir+string(filepath.Separator))
	if err != nil {
		return err
	}
	s.logger.Debug("Downloaded item", "url", item.URL(), "saved", saved)
	return nil
}

// artistDir is <outputDir>/<site>/<first artist name>.
func (s *Scraper) artistDir(item *webpic.MediaItem) string {
	name := unknownArtistDir
	if artist := item.ArtistInfo(); artist != nil && len(artist.Names) > 0 {
		name = webpic.SanitizeFileName(artist.Names[0])
	}
	return filepath.Join(s.outputDir, item.SiteType().String(), name)
}

func (s *Scraper) print(item *webpic.MediaItem) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", item.URL())
	fmt.Fprintf(&b, "  site:   %s %s\n", item.SiteType(), item.Role())
	if item.SourceURL() != "" {
		fmt.Fprintf(&b, "  source: %s\n", item.SourceURL())
	}
	if artist := item.ArtistInfo(); artist != nil {
		fmt.Fprintf(&b, "  artist: %s\n", strings.Join(artist.Names, ", "))
		for _, u := range artist.PixivURLs {
			fmt.Fprintf(&b, "    pixiv:   %s\n", u)
		}
		for _, u := range artist.TwitterURLs {
			fmt.Fprintf(&b, "    twitter: %s\n", u)
		}
	}
	if tags := item.Tags(); len(tags) > 0 {
		fmt.Fprintf(&b, "  tags:   %s\n", strings.Join(tags, " "))
	}
	for _, u := range item.FileURLs() {
		fmt.Fprintf(&b, "  file:   %s\n", u)
	}

	_, err := io.WriteString(s.out, b.String())
	if err != nil {
		s.logger.Warn("Failed to print item", "url", item.URL(), "error", err)
	}
}
