package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
)

var (
	// A twitter handle mentioned in free text, e.g. a pixiv bio.
	twitterHandleRegexp = regexp.MustCompile(`twitter\.com/([A-Za-z0-9_]+)`)
	// A full https URL in free text runs until whitespace.
	httpsRunRegexp = regexp.MustCompile(`https://[^\s]+`)
	// Fanbox pages embed the pixiv user id in their cover image path.
	fanboxCreatorRegexp = regexp.MustCompile(`fanbox/public/images/creator/(\d+)/cover`)
	// Weibo descriptions mention profiles without a scheme.
	weiboPixivRegexp   = regexp.MustCompile(`pixiv\.net[A-Za-z0-9./?]*`)
	weiboTwitterRegexp = regexp.MustCompile(`twitter\.com[A-Za-z0-9./?]*`)
)

// ArtistInfo is the creator of an item and their profiles on pixiv and
// twitter.  Names[0] is usually the display name; later entries are aliases.
type ArtistInfo struct {
	Names       []string
	PixivURLs   []string
	TwitterURLs []string
}

// ArtistInfoFromNames wraps names that were already extracted, without any
// fetch.  This is how e-hentai artists are built.
func ArtistInfoFromNames(names []string) *ArtistInfo {
	a := newArtistInfo()
	for _, n := range names {
		a.addName(n)
	}
	return a
}

func newArtistInfo() *ArtistInfo {
	return &ArtistInfo{
		Names:       []string{},
		PixivURLs:   []string{},
		TwitterURLs: []string{},
	}
}

// Clone returns a deep copy.  Cloning nil returns nil.
func (a *ArtistInfo) Clone() *ArtistInfo {
	if a == nil {
		return nil
	}
	return &ArtistInfo{
		Names:       slices.Clone(a.Names),
		PixivURLs:   slices.Clone(a.PixivURLs),
		TwitterURLs: slices.Clone(a.TwitterURLs),
	}
}

// Clear empties every list.
func (a *ArtistInfo) Clear() {
	a.Names = []string{}
	a.PixivURLs = []string{}
	a.TwitterURLs = []string{}
}

// IsEmpty reports whether nothing is known about the artist.
func (a *ArtistInfo) IsEmpty() bool {
	return a == nil || (len(a.Names) == 0 && len(a.PixivURLs) == 0 && len(a.TwitterURLs) == 0)
}

func (a *ArtistInfo) addName(name string) {
	name = strings.TrimSpace(name)
	if name != "" && !slices.Contains(a.Names, name) {
		a.Names = append(a.Names, name)
	}
}

func (a *ArtistInfo) addPixivURL(u string) {
	if u != "" && !slices.Contains(a.PixivURLs, u) {
		a.PixivURLs = append(a.PixivURLs, u)
	}
}

func (a *ArtistInfo) addTwitterURL(u string) {
	if u != "" && !slices.Contains(a.TwitterURLs, u) {
		a.TwitterURLs = append(a.TwitterURLs, u)
	}
}

// addProfileLink files a link found on a tag board artist page under pixiv or
// twitter.  Anything else is ignored.
func (a *ArtistInfo) addProfileLink(link string) {
	switch {
	case strings.Contains(link, "pixiv.net/member.php?id=") || strings.Contains(link, "pixiv.net/users/"):
		a.addPixivURL(link)
	case strings.Contains(link, "twitter.com/"):
		// Intent and status links have more path after the handle.
		rest := link[strings.Index(link, "twitter.com/")+len("twitter.com/"):]
		if rest != "" && !strings.ContainsAny(rest, "/?") {
			a.addTwitterURL(link)
		}
	}
}

type artistExtractor func(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error)

var artistExtractors = map[SiteType]artistExtractor{
	Pixiv:    extractPixivArtist,
	Twitter:  extractTwitterArtist,
	Danbooru: extractDanbooruArtist,
	Yandere:  extractMoebooruArtist,
	Konachan: extractMoebooruArtist,
	Weibo:    extractWeiboArtist,
}

// ExtractArtistInfo fetches an artist profile page and normalizes it.
//
// Parameters:
//   - ctx: Context for cancellation
//   - site: Site the profile belongs to
//   - profileURL: The artist's profile (or wiki) URL
//
// Returns:
//   - *ArtistInfo: The extracted artist
//   - error: Any fetch error unchanged, ErrNamesRequired for e-hentai, or
//     ErrUnknownSite
func (s *Session) ExtractArtistInfo(ctx context.Context, site SiteType, profileURL string) (*ArtistInfo, error) {
	return s.newFetcher(site, nil).extractArtist(ctx, site, profileURL)
}

func (f *fetcher) extractArtist(ctx context.Context, site SiteType, profileURL string) (*ArtistInfo, error) {
	if site == EHentai {
		return nil, ErrNamesRequired
	}
	extract, ok := artistExtractors[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, profileURL)
	}
	return extract(ctx, f, profileURL)
}

func extractPixivArtist(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error) {
	id, ok := pixivUserID(profileURL)
	if !ok {
		return nil, fmt.Errorf("%w: no pixiv user id in %s", ErrCannotDetermineRole, profileURL)
	}
	api, err := f.pixivAPI()
	if err != nil {
		return nil, err
	}
	err = f.pause(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := api.UserDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return artistFromPixivUser(detail), nil
}

func artistFromPixivUser(detail *PixivUserDetail) *ArtistInfo {
	a := newArtistInfo()
	a.addName(detail.User.Name)
	a.addPixivURL(pixivUserURL(detail.User.ID))

	switch {
	case detail.Profile.TwitterURL != "":
		a.addTwitterURL(detail.Profile.TwitterURL)
	default:
		m := twitterHandleRegexp.FindStringSubmatch(detail.User.Comment)
		if m != nil {
			a.addTwitterURL("https://twitter.com/" + m[1])
		}
	}
	return a
}

func extractTwitterArtist(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error) {
	parts, err := splitURL(profileURL)
	if err != nil || len(parts.segments) == 0 {
		return nil, fmt.Errorf("%w: no screen name in %s", ErrCannotDetermineRole, profileURL)
	}
	api, err := f.twitterAPI()
	if err != nil {
		return nil, err
	}
	err = f.pause(ctx)
	if err != nil {
		return nil, err
	}
	user, err := api.User(ctx, parts.segments[0])
	if err != nil {
		return nil, err
	}
	return artistFromTwitterUser(ctx, f, user), nil
}

// artistFromTwitterUser follows every link in the profile to find pixiv
// accounts.  Links that fail to resolve are skipped.
func artistFromTwitterUser(ctx context.Context, f *fetcher, user *TwitterUser) *ArtistInfo {
	a := newArtistInfo()
	a.addName(user.Name)
	a.addName(user.ScreenName)
	a.addTwitterURL(twitterUserURL(user.ScreenName))

	var candidates []string
	for _, e := range user.Entities.URL.URLs {
		candidates = append(candidates, e.ExpandedURL)
	}
	for _, e := range user.Entities.Description.URLs {
		candidates = append(candidates, e.ExpandedURL)
	}
	candidates = append(candidates, httpsRunRegexp.FindAllString(user.Description, -1)...)

	for _, link := range dedupeURLs(candidates) {
		final, err := f.resolve(ctx, link)
		if err != nil {
			f.logger.Warn("Failed to resolve profile link", "link", link, "error", err)
			continue
		}
		switch {
		case strings.Contains(final, "pixiv.net/users/"):
			a.addPixivURL(final)
		case strings.Contains(final, ".fanbox.cc"):
			id, err := fanboxPixivID(ctx, f, final)
			if err != nil {
				f.logger.Warn("Failed to read fanbox page", "link", final, "error", err)
				continue
			}
			if id != "" {
				a.addPixivURL("https://" + Pixiv.Domain() + "/users/" + id)
			}
		}
	}
	return a
}

func fanboxPixivID(ctx context.Context, f *fetcher, fanboxURL string) (string, error) {
	data, err := f.get(ctx, fanboxURL)
	if err != nil {
		return "", err
	}
	m := fanboxCreatorRegexp.FindSubmatch(data)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// dedupeURLs drops empty and duplicate URLs, comparing normalized forms.
func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		key, err := purell.NormalizeURLString(u, purell.FlagsSafe|purell.FlagRemoveTrailingSlash|purell.FlagRemoveFragment)
		if err != nil {
			key = u
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

func extractDanbooruArtist(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error) {
	doc, err := f.getDocument(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	a := newArtistInfo()
	doc.Find("a.artist-other-name").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		a.addName(u.Query().Get("search[any_name_matches]"))
	})
	if len(a.Names) == 0 {
		title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
		title, _, _ = strings.Cut(title, " | Artist Profile")
		a.addName(title)
	}

	doc.Find("ul.list-bulleted a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		a.addProfileLink(href)
	})
	return a, nil
}

// extractMoebooruArtist reads a yande.re or konachan wiki page.  The page
// title in the URL is the canonical name.
func extractMoebooruArtist(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error) {
	a := newArtistInfo()
	u, err := url.Parse(profileURL)
	if err == nil {
		a.addName(u.Query().Get("title"))
	}

	doc, err := f.getDocument(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		switch strings.TrimSpace(row.Find("th").First().Text()) {
		case "URL":
			row.Find("td a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				a.addProfileLink(href)
			})
		case "Aliases":
			row.Find(`td a[href*="/wiki/show?title="]`).Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				alias, err := url.Parse(href)
				if err != nil {
					return
				}
				a.addName(alias.Query().Get("title"))
			})
		}
	})
	return a, nil
}

func extractWeiboArtist(ctx context.Context, f *fetcher, profileURL string) (*ArtistInfo, error) {
	parts, err := splitURL(profileURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCannotDetermineRole, profileURL)
	}
	uid, err := weiboUserID(ctx, f, parts)
	if err != nil {
		return nil, err
	}
	profile, err := fetchWeiboProfile(ctx, f, uid)
	if err != nil {
		return nil, err
	}
	return artistFromWeiboUser(profile.Data.UserInfo), nil
}

func artistFromWeiboUser(user weiboUser) *ArtistInfo {
	a := newArtistInfo()
	a.addName(user.ScreenName)
	if m := weiboPixivRegexp.FindString(user.Description); m != "" {
		a.addPixivURL("https://www." + m)
	}
	if m := weiboTwitterRegexp.FindString(user.Description); m != "" {
		a.addTwitterURL("https://www." + m)
	}
	return a
}
