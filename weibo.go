package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	weiboMobileHost = "m.weibo.cn"
	// getIndex container id prefixes for a user's profile and their feed.
	weiboProfileContainer = "100505"
	weiboFeedContainer    = "107603"
)

var (
	// The desktop site only exposes the owner id through its page config.
	weiboOIDRegexp = regexp.MustCompile(`\$CONFIG\['oid'\]\s*=\s*'(\d+)'`)
)

// weiboID is an id the API sends sometimes as a number, sometimes as a
// string.
type weiboID string

func (w *weiboID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*w = weiboID(s)
		return nil
	}
	var n json.Number
	err := json.Unmarshal(data, &n)
	if err != nil {
		return err
	}
	*w = weiboID(n.String())
	return nil
}

type weiboUser struct {
	ID          weiboID `json:"id"`
	ScreenName  string  `json:"screen_name"`
	Description string  `json:"description"`
}

type weiboPic struct {
	Large struct {
		URL string `json:"url"`
	} `json:"large"`
}

type weiboStatus struct {
	ID   weiboID    `json:"id"`
	User *weiboUser `json:"user"`
	Pics []weiboPic `json:"pics"`
}

type weiboProfileResponse struct {
	OK   int `json:"ok"`
	Data struct {
		UserInfo weiboUser `json:"userInfo"`
	} `json:"data"`
}

type weiboStatusResponse struct {
	OK   int         `json:"ok"`
	Data weiboStatus `json:"data"`
}

type weiboFeedResponse struct {
	OK   int `json:"ok"`
	Data struct {
		Cards []struct {
			Mblog *weiboStatus `json:"mblog"`
		} `json:"cards"`
	} `json:"data"`
}

type weiboSite struct {
	parts    *urlParts
	uid      string
	statusID string
}

func (w *weiboSite) classify(u *urlParts) Role {
	w.parts = u
	if u.host != weiboMobileHost {
		// Desktop pages are always user pages; the uid is on the page.
		return RoleParent
	}
	switch {
	case strings.Contains(u.path, "/detail/") || strings.Contains(u.path, "/status/"):
		w.statusID = u.last()
		return RoleChild
	case strings.Contains(u.path, "/u/"):
		w.uid = u.last()
		return RoleParent
	}
	return RoleUnknown
}

func (w *weiboSite) extract(ctx context.Context, item *MediaItem) error {
	if item.IsParent() {
		uid, err := weiboUserID(ctx, item.f, w.parts)
		if err != nil {
			return err
		}
		w.uid = uid

		profile, err := fetchWeiboProfile(ctx, item.f, uid)
		if err != nil {
			return err
		}
		user := profile.Data.UserInfo
		item.setArtist(artistFromWeiboUser(user))
		item.addTag(user.ScreenName)
		item.sourceURL = weiboUserURL(uid)
		return nil
	}

	uri := fmt.Sprintf("https://%s/statuses/show?id=%s", weiboMobileHost, w.statusID)
	var resp weiboStatusResponse
	err := item.f.getJSON(ctx, uri, &resp)
	if err != nil {
		return err
	}
	if resp.OK != 1 {
		return fmt.Errorf("%w: %s returned ok=%d", ErrUpstream, uri, resp.OK)
	}

	status := resp.Data
	if status.User != nil {
		w.uid = string(status.User.ID)
		artist := item.hint
		if artist == nil {
			artist = artistFromWeiboUser(*status.User)
		}
		item.setArtist(artist)
		item.addTag(status.User.ScreenName)
	}
	for _, pic := range status.Pics {
		item.addFile(pic.Large.URL)
	}
	item.sourceURL = weiboStatusURL(string(status.ID))
	return nil
}

func (w *weiboSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	for page := 1; page <= maxChildPages; page++ {
		uri := fmt.Sprintf("https://%s/api/container/getIndex?uid=%s&type=uid&page=%d&containerid=%s%s",
			weiboMobileHost, w.uid, page, weiboFeedContainer, w.uid)
		var resp weiboFeedResponse
		err := item.f.getJSON(ctx, uri, &resp)
		if err != nil {
			return err
		}
		// ok=0 is how the feed says there are no more pages.
		if resp.OK != 1 || len(resp.Data.Cards) == 0 {
			return nil
		}
		for _, card := range resp.Data.Cards {
			if card.Mblog == nil || len(card.Mblog.Pics) == 0 {
				continue
			}
			c.add(weiboStatusURL(string(card.Mblog.ID)))
			if c.full() {
				return nil
			}
		}
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

func (w *weiboSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	return downloadHTTP(ctx, item, fileURL, target)
}

// weiboUserID finds the numeric uid of a user page on either domain.
func weiboUserID(ctx context.Context, f *fetcher, u *urlParts) (string, error) {
	if u.host == weiboMobileHost {
		uid := u.last()
		if _, err := strconv.ParseUint(uid, 10, 64); err != nil {
			return "", fmt.Errorf("%w: no uid in %s", ErrCannotDetermineRole, u.u)
		}
		return uid, nil
	}

	pageURL := u.u.String()
	data, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	m := weiboOIDRegexp.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("%w: no $CONFIG['oid'] in %s", ErrUnparseableDocument, pageURL)
	}
	return string(m[1]), nil
}

func fetchWeiboProfile(ctx context.Context, f *fetcher, uid string) (*weiboProfileResponse, error) {
	uri := fmt.Sprintf("https://%s/api/container/getIndex?uid=%s&type=uid&value=%s&containerid=%s%s",
		weiboMobileHost, uid, uid, weiboProfileContainer, uid)
	var resp weiboProfileResponse
	err := f.getJSON(ctx, uri, &resp)
	if err != nil {
		return nil, err
	}
	if resp.OK != 1 {
		return nil, fmt.Errorf("%w: %s returned ok=%d", ErrUpstream, uri, resp.OK)
	}
	return &resp, nil
}

func weiboUserURL(uid string) string {
	return fmt.Sprintf("https://%s/u/%s", weiboMobileHost, uid)
}

func weiboStatusURL(id string) string {
	return fmt.Sprintf("https://%s/status/%s", weiboMobileHost, id)
}
