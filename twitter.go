package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type twitterSite struct {
	screenName string
	statusID   string
}

func (t *twitterSite) classify(u *urlParts) Role {
	switch {
	case len(u.segments) >= 3 && u.segments[1] == "status":
		t.screenName = u.segments[0]
		t.statusID = u.segments[2]
		return RoleChild
	case len(u.segments) == 1 && !strings.Contains(u.host, "twimg.com"):
		t.screenName = u.segments[0]
		return RoleParent
	}
	return RoleUnknown
}

func (t *twitterSite) extract(ctx context.Context, item *MediaItem) error {
	api, err := item.f.twitterAPI()
	if err != nil {
		return err
	}
	err = item.f.pause(ctx)
	if err != nil {
		return err
	}

	if item.IsParent() {
		user, err := api.User(ctx, t.screenName)
		if err != nil {
			return fmt.Errorf("%w: user %s: %w", ErrBadURL, t.screenName, err)
		}
		t.screenName = user.ScreenName
		item.setArtist(artistFromTwitterUser(ctx, item.f, user))
		item.sourceURL = twitterUserURL(t.screenName)
		return nil
	}

	status, err := api.Status(ctx, t.statusID)
	if err != nil {
		return fmt.Errorf("%w: status %s: %w", ErrBadURL, t.statusID, err)
	}
	// The screen name in the URL may be stale.
	t.screenName = status.User.ScreenName

	artist, err := item.artistOrLookup(ctx, twitterUserURL(t.screenName))
	if err != nil {
		return err
	}
	item.setArtist(artist)

	if status.ExtendedEntities != nil {
		for _, media := range status.ExtendedEntities.Media {
			mediaURL := media.MediaURLHTTPS
			if mediaURL == "" {
				mediaURL = media.MediaURL
			}
			item.addFile(mediaURL)
		}
	}

	item.addTag(strings.ReplaceAll(t.screenName, " ", "_"))
	for _, hashtag := range status.Entities.Hashtags {
		item.addTag(hashtag.Text)
	}

	item.sourceURL = fmt.Sprintf("https://%s/%s/status/%s", Twitter.Domain(), t.screenName, status.IDStr)
	return nil
}

func (t *twitterSite) children(ctx context.Context, item *MediaItem, c *collector) error {
	api, err := item.f.twitterAPI()
	if err != nil {
		return err
	}

	// Always look the user up again to get the current screen name.
	err = item.f.pause(ctx)
	if err != nil {
		return err
	}
	user, err := api.User(ctx, t.screenName)
	if err != nil {
		return err
	}
	screenName := user.ScreenName

	maxID := ""
	for range maxChildPages {
		err := item.f.pause(ctx)
		if err != nil {
			return err
		}
		tweets, err := api.UserTimeline(ctx, screenName, maxID, twitterTimelinePageSize)
		if err != nil {
			return err
		}
		if len(tweets) == 0 {
			return nil
		}
		for _, tweet := range tweets {
			c.add(fmt.Sprintf("https://%s/%s/status/%s", Twitter.Domain(), screenName, tweet.IDStr))
		}
		if c.full() {
			return nil
		}

		oldest, err := strconv.ParseUint(tweets[len(tweets)-1].IDStr, 10, 64)
		if err != nil || oldest == 0 {
			return nil
		}
		maxID = strconv.FormatUint(oldest-1, 10)
	}
	item.logger.Warn("Stopped listing children at page cap", "pages", maxChildPages)
	return nil
}

// download asks for the original size instead of the default rendition.
func (t *twitterSite) download(ctx context.Context, item *MediaItem, fileURL, target string) (bool, error) {
	return downloadHTTP(ctx, item, fileURL+":orig", target)
}

func twitterUserURL(screenName string) string {
	return fmt.Sprintf("https://%s/%s", Twitter.Domain(), screenName)
}
