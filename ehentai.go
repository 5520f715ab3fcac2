package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	ehentaiAPIURL = "https://api.e-hentai.org/api.php"
	// Thumbnails on one page of a gallery index.
	ehentaiThumbsPerPage = 40
)

var (
	ehentaiPageRegexp    = regexp.MustCompile(`^/s/([0-9a-f]+)/(\d+)-(\d+)$`)
	ehentaiGalleryRegexp = regexp.MustCompile(`^/g/(\d+)/([0-9a-f]+)/?$`)
)

type ehentaiGalleryMetadata struct {
	GID       int64    `json:"gid"`
	Token     string   `json:"token"`
	Title     string   `json:"title"`
	FileCount string   `json:"filecount"`
	Tags      []string `json:"tags"`
	Error     string   `json:"error"`
}

type ehentaiGDataResponse struct {
	GMetadata []ehentaiGalleryMetadata `json:"gmetadata"`
}

type ehentaiGTokenResponse struct {
	TokenList []struct {
		GID   int64  `json:"gid"`
		Token string `json:"token"`
		Error string `json:"error"`
	} `json:"tokenlist"`
	Error string `json:"error"`
}

type ehentaiSite struct {
	pageURL   *url.URL
	isSearch  bool
	gid       int64
	token     string
	pageToken string
	pageNum   int
	fileCount int
}

func (e *ehentaiSite) classify(u *urlParts) Role {
	e.pageURL = u.u
	if m := ehentaiPageRegexp.FindStringSubmatch(u.path); m != nil {
		e.pageToken = m[1]
		e.gid, _ = strconv.ParseInt(m[2], 10, 64)
		e.pageNum, _ = strconv.Atoi(m[3])
		return RoleChild
	}
	if m := ehentaiGalleryRegexp.FindStringSubmatch(u.path); m != nil {
		e.gid, _ = strconv.ParseInt(m[1], 10, 64)
		e.token = m[2]
		return RoleParent
	}
	// Searches, tag listings, and anything else list many galleries.
	e.isSearch = true
	return RoleParent
}

func (e *ehentaiSite) extract(ctx context.Context, item *MediaItem) error {
	if e.isSearch {
		return nil
	}

	if item.IsChild() {
		gid, token, err := e.galleryToken(ctx, item.f)
		if err != nil {
			return err
		}
		e.gid, e.token = gid, token
	}

	meta, err := e.galleryMetadata(ctx, item.f)
	if err != nil {
		return err
	}
	e.fileCount, _ = strconv.Atoi(meta.FileCount)

	var artists []string
	for _, tag := range meta.Tags {
		namespace, value, found := strings.Cut(tag, ":")
		if !found {
			value = namespace
			namespace = ""
		}
		if namespace == "artist" {
			artists = append(artists, value)
		}
		item.addTag(value)
	}
	if len(artists) > 0 {
		item.setArtist(ArtistInfoFromNames(artists))
	}

	if item.IsChild() {
		doc, err := item.f.getDocument(ctx, item.pageURL())
		if err != nil {
			return err
		}
		src, ok := doc.Find("#img").First().Attr("src")
		if !ok {
			return fmt.Errorf("%w: no #img on page", ErrUnparseableDocument)
		}
		item.addFile(src)
	}
	return nil
}

func (e *ehentaiSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	if e.isSearch {
		return e.searchChildren(ctx, item, c)
	}

	pages := (e.fileCount + ehentaiThumbsPerPage - 1) / ehentaiThumbsPerPage
	for p := range min(pages, maxChildPages) {
		doc, err := item.f.getDocument(ctx, withQuery(e.pageURL, "p", strconv.Itoa(p)))
		if err != nil {
			return err
		}
		doc.Find(`#gdt a[href*="/s/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			c.add(href)
			return !c.full()
		})
		if c.full() {
			return nil
		}
	}
	return nil
}

// searchChildren walks search result pages until one adds nothing new.
func (e *ehentaiSite) searchChildren(ctx context.Context, item *MediaItem, c *collector) error {
	base := *e.pageURL
	base.RawQuery = url.Values{"f_search": {e.pageURL.Query().Get("f_search")}}.Encode()

	for page := range maxChildPages {
		doc, err := item.f.getDocument(ctx, withQuery(&base, "page", strconv.Itoa(page)))
		if err != nil {
			return err
		}
		added := 0
		doc.Find(".gl3c.glname a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if c.add(href) {
				added++
			}
			return !c.full()
		})
		if c.full() || added == 0 {
			return nil
		}
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

func (e *ehentaiSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	return downloadHTTP(ctx, item, fileURL, target)
}

// galleryToken asks the API which gallery a single page belongs to.
func (e *ehentaiSite) galleryToken(ctx context.Context, f *fetcher) (int64, string, error) {
	body := map[string]any{
		"method":   "gtoken",
		"pagelist": [][]any{{e.gid, e.pageToken, e.pageNum}},
	}
	var resp ehentaiGTokenResponse
	err := f.postJSON(ctx, ehentaiAPIURL, body, &resp)
	if err != nil {
		return 0, "", err
	}
	if resp.Error != "" || len(resp.TokenList) == 0 || resp.TokenList[0].Error != "" {
		return 0, "", fmt.Errorf("%w: gtoken for %d/%s: %s", ErrUpstream, e.gid, e.pageToken, resp.Error)
	}
	return resp.TokenList[0].GID, resp.TokenList[0].Token, nil
}

func (e *ehentaiSite) galleryMetadata(ctx context.Context, f *fetcher) (*ehentaiGalleryMetadata, error) {
	body := map[string]any{
		"method":    "gdata",
		"gidlist":   [][]any{{e.gid, e.token}},
		"namespace": 1,
	}
	var resp ehentaiGDataResponse
	err := f.postJSON(ctx, ehentaiAPIURL, body, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.GMetadata) == 0 || resp.GMetadata[0].Error != "" {
		msg := ""
		if len(resp.GMetadata) > 0 {
			msg = resp.GMetadata[0].Error
		}
		return nil, fmt.Errorf("%w: gdata for %d/%s: %s", ErrUpstream, e.gid, e.token, msg)
	}
	return &resp.GMetadata[0], nil
}

// EHentaiSearchURL builds the search listing URL for keyword.
func EHentaiSearchURL(keyword string) string {
	return fmt.Sprintf("https://%s/?%s", EHentai.Domain(), url.Values{"f_search": {keyword}}.Encode())
}
