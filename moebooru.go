package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
)

var (
	// The argument of a Post.register* call ends at the first ");", so
	// several calls may share a line.
	registerCallRegexp = regexp.MustCompile(`Post\.register\w*\((.*?)\);`)

	pixivIllustIDRegexp = regexp.MustCompile(`illust_id=(\d+)`)
	leadingDigitsRegexp = regexp.MustCompile(`^(\d+)_`)
)

// moebooruBoard holds what differs between the moebooru-based boards.
type moebooruBoard struct {
	site SiteType
	// Pool pages past the end render this instead of an error.  Empty when
	// the board has no such marker.
	deadPoolMarker string
}

var (
	yandereBoard = moebooruBoard{
		site:           Yandere,
		deadPoolMarker: `var thumb = $("hover-thumb");`,
	}
	konachanBoard = moebooruBoard{
		site: Konachan,
	}
)

// moebooruSite is the adapter for yande.re and konachan, which run the same
// board software and embed their data as Post.register calls.
type moebooruSite struct {
	board   moebooruBoard
	pageURL *url.URL
	isPool  bool
}

func newMoebooruSite(board moebooruBoard) *moebooruSite {
	return &moebooruSite{board: board}
}

func (m *moebooruSite) classify(u *urlParts) Role {
	m.pageURL = u.u
	switch {
	case strings.Contains(u.path, "/post/show/"):
		return RoleChild
	case strings.HasPrefix(u.path, "/pool"):
		m.isPool = true
		return RoleParent
	case strings.HasPrefix(u.path, "/post"):
		return RoleParent
	}
	return RoleUnknown
}

func (m *moebooruSite) extract(ctx context.Context, item *MediaItem) error {
	doc, err := item.f.getDocument(ctx, item.pageURL())
	if err != nil {
		return err
	}
	records, err := scanRegisterCalls(doc)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: no Post.register data", ErrUnparseableDocument)
	}

	tags := moebooruTags(records[0], item.IsParent())
	if artist := artistTag(tags); artist != "" {
		wikiURL := fmt.Sprintf("https://%s/wiki/show?title=%s", m.board.site.Domain(), url.QueryEscape(artist))
		info, err := item.artistOrLookup(ctx, wikiURL)
		if err != nil {
			return err
		}
		item.setArtist(info)
	}

	if item.IsChild() {
		posts := recordPosts(records[0])
		if len(posts) == 0 {
			return fmt.Errorf("%w: no posts in Post.register data", ErrUnparseableDocument)
		}
		fileURL := stringField(posts[0], "file_url")
		if fileURL == "" {
			return fmt.Errorf("%w: post has no file_url", ErrUnparseableDocument)
		}
		item.addFile(fileURL)
		item.sourceURL = normalizeSourceURL(stringField(posts[0], "source"))
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		item.addTag(name)
	}
	return nil
}

func (m *moebooruSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	lastPostID := ""
	for page := 1; page <= maxChildPages; page++ {
		pageURL := withQuery(m.pageURL, "page", strconv.Itoa(page))
		data, err := item.f.get(ctx, pageURL)
		if err != nil {
			return err
		}
		if m.isPool && m.board.deadPoolMarker != "" && strings.Contains(string(data), m.board.deadPoolMarker) {
			item.logger.Info("Pool page is dead, returning nothing", "page", pageURL)
			return nil
		}
		doc, err := parseHTML(pageURL, data)
		if err != nil {
			return err
		}
		records, err := scanRegisterCalls(doc)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		var posts []map[string]any
		switch {
		case m.isPool:
			posts = recordPosts(records[0])
		case recordPosts(records[0]) != nil:
			posts = recordPosts(records[0])
		case len(records[0]) == 0:
			return nil
		default:
			posts = records[1:]
		}
		if len(posts) == 0 {
			return nil
		}

		// Pools past their last page repeat the final page.
		id := jsonID(posts[len(posts)-1]["id"])
		if id == lastPostID {
			return nil
		}
		lastPostID = id

		for _, post := range posts {
			c.add(fmt.Sprintf("https://%s/post/show/%s", m.board.site.Domain(), jsonID(post["id"])))
			if c.full() {
				return nil
			}
		}
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

func (m *moebooruSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	return downloadHTTP(ctx, item, fileURL, target)
}

// scanRegisterCalls finds every Post.register* call in the page scripts and
// parses their arguments as one array.
func scanRegisterCalls(doc *goquery.Document) ([]map[string]any, error) {
	var args []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range registerCallRegexp.FindAllStringSubmatch(s.Text(), -1) {
			args = append(args, m[1])
		}
	})
	if len(args) == 0 {
		return nil, nil
	}

	var records []map[string]any
	err := json5.Unmarshal([]byte("["+strings.Join(args, ",")+"]"), &records)
	if err != nil {
		return nil, fmt.Errorf("%w: Post.register data: %w", ErrUnparseableDocument, err)
	}
	return records, nil
}

// moebooruTags returns the tag name to tag type map of the first record.  On
// list pages the first record is the map itself.
func moebooruTags(record map[string]any, isParent bool) map[string]string {
	tags := make(map[string]string)
	src, ok := record["tags"].(map[string]any)
	if !ok {
		if !isParent {
			return tags
		}
		src = record
	}
	for name, kind := range src {
		if s, ok := kind.(string); ok {
			tags[name] = s
		}
	}
	return tags
}

// artistTag returns the tag typed "artist".  With several, the first in
// lexical order wins.
func artistTag(tags map[string]string) string {
	var artists []string
	for name, kind := range tags {
		if kind == "artist" {
			artists = append(artists, name)
		}
	}
	if len(artists) == 0 {
		return ""
	}
	return slices.Min(artists)
}

// recordPosts returns the nested posts list of a record, or nil.
func recordPosts(record map[string]any) []map[string]any {
	raw, ok := record["posts"].([]any)
	if !ok {
		return nil
	}
	posts := make([]map[string]any, 0, len(raw))
	for _, p := range raw {
		if post, ok := p.(map[string]any); ok {
			posts = append(posts, post)
		}
	}
	return posts
}

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}

// jsonID renders a decoded JSON id, which may be a number or a string.
func jsonID(v any) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return id
	default:
		return ""
	}
}

// normalizeSourceURL turns the many ways a pixiv work shows up in a tag board
// "source" field into its canonical artwork URL.  Other URLs with a host pass
// through untouched.
func normalizeSourceURL(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)

	switch {
	case strings.Contains(host, "pixiv.net"):
		if m := pixivArtworksRegexp.FindStringSubmatch(u.Path); m != nil {
			return "https://" + Pixiv.Domain() + "/artworks/" + m[1]
		}
		if m := pixivIllustIDRegexp.FindStringSubmatch(u.RawQuery); m != nil {
			return "https://" + Pixiv.Domain() + "/artworks/" + m[1]
		}
	case strings.Contains(host, "pximg.net"):
		if m := leadingDigitsRegexp.FindStringSubmatch(path.Base(u.Path)); m != nil {
			return "https://" + Pixiv.Domain() + "/artworks/" + m[1]
		}
	}
	return source
}
