package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	pixivUsersRegexp    = regexp.MustCompile(`/users/(\d+)`)
	pixivArtworksRegexp = regexp.MustCompile(`/artworks/(\d+)`)
	// CDN image names look like 12345678_p0.png or 12345678_p0_master1200.jpg.
	pximgRegexp = regexp.MustCompile(`(\d+)_p\d+`)
)

type pixivSite struct {
	illustID int64
	userID   int64
}

func (p *pixivSite) classify(u *urlParts) Role {
	switch {
	case strings.Contains(u.host, "pximg.net"):
		m := pximgRegexp.FindStringSubmatch(u.last())
		if m != nil {
			p.illustID, _ = strconv.ParseInt(m[1], 10, 64)
			return RoleChild
		}
	case strings.HasSuffix(u.path, "member_illust.php"):
		id := u.query.Get("illust_id")
		if id == "" {
			id = u.query.Get("id")
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			p.illustID = n
			return RoleChild
		}
	case strings.HasSuffix(u.path, "member.php"):
		if n, err := strconv.ParseInt(u.query.Get("id"), 10, 64); err == nil {
			p.userID = n
			return RoleParent
		}
	default:
		if m := pixivArtworksRegexp.FindStringSubmatch(u.path); m != nil {
			p.illustID, _ = strconv.ParseInt(m[1], 10, 64)
			return RoleChild
		}
		if m := pixivUsersRegexp.FindStringSubmatch(u.path); m != nil {
			p.userID, _ = strconv.ParseInt(m[1], 10, 64)
			return RoleParent
		}
	}
	return RoleUnknown
}

func (p *pixivSite) extract(ctx context.Context, item *MediaItem) error {
	api, err := item.f.pixivAPI()
	if err != nil {
		return err
	}
	err = item.f.pause(ctx)
	if err != nil {
		return err
	}

	if item.IsParent() {
		detail, err := api.UserDetail(ctx, p.userID)
		if err != nil {
			return fmt.Errorf("%w: user %d: %w", ErrBadURL, p.userID, err)
		}
		artist := artistFromPixivUser(detail)
		item.setArtist(artist)
		item.sourceURL = artist.PixivURLs[0]
		return nil
	}

	illust, err := api.IllustDetail(ctx, p.illustID)
	if err != nil {
		return fmt.Errorf("%w: illust %d: %w", ErrBadURL, p.illustID, err)
	}
	if !illust.Visible {
		return fmt.Errorf("%w: illust %d is not visible", ErrBadURL, p.illustID)
	}
	p.userID = illust.User.ID

	// A missing artist is not worth failing the whole item over.
	artist, err := item.artistOrLookup(ctx, pixivUserURL(illust.User.ID))
	if err != nil {
		item.logger.Warn("Failed to fetch pixiv artist, continuing without", "user", illust.User.ID, "error", err)
	} else {
		item.setArtist(artist)
	}

	if illust.MetaSinglePage.OriginalImageURL != "" {
		item.addFile(illust.MetaSinglePage.OriginalImageURL)
	} else {
		for _, page := range illust.MetaPages {
			item.addFile(page.ImageURLs.Original)
		}
	}

	for _, tag := range illust.Tags {
		item.addTag(strings.ReplaceAll(tag.Name, " ", "_"))
		item.addTag(strings.ReplaceAll(tag.TranslatedName, " ", "_"))
	}

	item.sourceURL = pixivArtworkURL(illust.ID)
	return nil
}

func (p *pixivSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	api, err := item.f.pixivAPI()
	if err != nil {
		return err
	}

	offset := 0
	for range maxChildPages {
		err := item.f.pause(ctx)
		if err != nil {
			return err
		}
		page, err := api.UserIllusts(ctx, p.userID, offset)
		if err != nil {
			return err
		}
		for _, illust := range page.Illusts {
			c.add(pixivArtworkURL(illust.ID))
		}
		if c.full() || page.NextURL == "" || len(page.Illusts) == 0 {
			return nil
		}

		next, err := url.Parse(page.NextURL)
		if err != nil {
			return fmt.Errorf("%w: next_url %q: %w", ErrUnparseableDocument, page.NextURL, err)
		}
		nextOffset, err := strconv.Atoi(next.Query().Get("offset"))
		if err != nil || nextOffset <= offset {
			return nil
		}
		offset = nextOffset
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

func (p *pixivSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	api, err := item.f.pixivAPI()
	if err != nil {
		return false, err
	}
	err = item.f.pause(ctx)
	if err != nil {
		return false, err
	}
	return api.Download(ctx, fileURL, target)
}

func pixivArtworkURL(id int64) string {
	return fmt.Sprintf("https://%s/artworks/%d", Pixiv.Domain(), id)
}

func pixivUserURL(id int64) string {
	return fmt.Sprintf("https://%s/users/%d", Pixiv.Domain(), id)
}

// pixivUserID pulls the numeric user id out of a profile URL in either the
// current or the legacy member.php form.
func pixivUserID(profileURL string) (int64, bool) {
	parts, err := splitURL(profileURL)
	if err != nil {
		return 0, false
	}
	id := parts.query.Get("id")
	if m := pixivUsersRegexp.FindStringSubmatch(parts.path); m != nil {
		id = m[1]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}
