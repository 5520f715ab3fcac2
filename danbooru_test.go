package webpic_test

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"webpic"

	"gotest.tools/assert"
)

const danbooruListPage = `<!doctype html>
<html><body>
<div class="artist-excerpt"><a class="artist-excerpt-link" href="/artists/778">lonely_artist</a></div>
<ul class="search-tag-list">
  <li data-tag-name="lonely_artist"><a href="/posts?tags=lonely_artist">lonely_artist</a></li>
</ul>
</body></html>`

func danbooruPosts(ids ...int) []byte {
	out := "<html><body><div id=\"posts\">"
	for _, id := range ids {
		out += fmt.Sprintf(`<article id="post_%d" data-id="%d"><a href="/posts/%d">post</a></article>`, id, id, id)
	}
	return []byte(out + "</div></body></html>")
}

func TestDanbooru_Child(t *testing.T) {
	ctx := context.Background()

	t.Run("post page", func(t *testing.T) {
		session, _ := NewTestSession(t, NewTestClient())
		item, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/posts/4242")
		assert.NilError(t, err)

		assert.Assert(t, item.IsChild())
		assert.Equal(t, item.SiteType(), webpic.Danbooru)
		assert.DeepEqual(t, item.FileURLs(), []string{"https://cdn.donmai.us/original/ab/cd/abcd1234.jpg"})
		assert.DeepEqual(t, item.FileNames(), []string{"abcd1234.jpg"})
		assert.Equal(t, item.SourceURL(), "https://www.pixiv.net/artworks/78901234")
		assert.DeepEqual(t, item.Tags(), []string{"sample_artist", "1girl", "blue_sky"}, AnyOrder)

		assert.Assert(t, item.HasArtist())
		assert.DeepEqual(t, item.ArtistInfo(), &webpic.ArtistInfo{
			Names: []string{"サンプル", "sample_alias"},
			PixivURLs: []string{
				"https://www.pixiv.net/users/5550001",
				"https://www.pixiv.net/member.php?id=5550001",
			},
			TwitterURLs: []string{"https://twitter.com/sample_artist"},
		})
	})

	t.Run("artist hint skips the artist page", func(t *testing.T) {
		client := NewTestClient()
		session, _ := NewTestSession(t, client)
		hint := webpic.ArtistInfoFromNames([]string{"from_parent"})

		item, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/posts/4242", webpic.WithArtistInfo(hint))
		assert.NilError(t, err)
		assert.DeepEqual(t, client.Requests(), []string{"https://danbooru.donmai.us/posts/4242"})
		assert.DeepEqual(t, item.ArtistInfo().Names, []string{"from_parent"})

		// The item holds its own copy.
		hint.Names[0] = "changed"
		assert.DeepEqual(t, item.ArtistInfo().Names, []string{"from_parent"})
	})

	t.Run("missing post", func(t *testing.T) {
		session, _ := NewTestSession(t, NewTestClient())
		_, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/posts/9999")
		assert.Assert(t, errors.Is(err, webpic.ErrHTTPNotFound), err)
		assert.ErrorContains(t, err, "https://danbooru.donmai.us/posts/9999")
	})

	t.Run("post without a file link", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://danbooru.donmai.us/posts/5", []byte("<html><body>deleted</body></html>"), nil)
		session, _ := NewTestSession(t, client)
		_, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/posts/5")
		assert.Assert(t, errors.Is(err, webpic.ErrUnparseableDocument), err)
	})

	t.Run("unrecognized path", func(t *testing.T) {
		session, _ := NewTestSession(t, NewTestClient())
		_, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/wiki_pages/blue_sky")
		assert.Assert(t, errors.Is(err, webpic.ErrCannotDetermineRole), err)
	})

	t.Run("children of a child", func(t *testing.T) {
		client := NewTestClient()
		session, _ := NewTestSession(t, client)
		item, err := session.URL2WebPic(ctx, "https://danbooru.donmai.us/posts/4242")
		assert.NilError(t, err)
		before := len(client.Requests())

		have, err := item.ChildrenURLs(ctx, -1)
		assert.NilError(t, err)
		assert.DeepEqual(t, have, []string{})
		assert.Equal(t, len(client.Requests()), before)
	})
}

func TestDanbooru_Parent(t *testing.T) {
	ctx := context.Background()
	const base = "https://danbooru.donmai.us/posts?tags=lonely_artist"

	newClient := func() *TestClient {
		client := NewTestClient()
		client.SetResponse(base, []byte(danbooruListPage), nil)
		client.SetResponse("https://danbooru.donmai.us/posts?page=1&tags=lonely_artist", danbooruPosts(10, 9, 8), nil)
		client.SetResponse("https://danbooru.donmai.us/posts?page=2&tags=lonely_artist", danbooruPosts(7, 6, 5), nil)
		client.SetResponse("https://danbooru.donmai.us/posts?page=3&tags=lonely_artist", danbooruPosts(4), nil)
		client.SetResponse("https://danbooru.donmai.us/posts?page=4&tags=lonely_artist", danbooruPosts(), nil)
		return client
	}

	client := newClient()
	session, spy := NewTestSession(t, client)
	item, err := session.URL2WebPic(ctx, base)
	assert.NilError(t, err)

	assert.Assert(t, item.IsParent())
	assert.DeepEqual(t, item.FileURLs(), []string{})
	assert.Equal(t, item.SourceURL(), "")
	assert.DeepEqual(t, item.Tags(), []string{"lonely_artist"})
	// Status links are not profiles.
	assert.DeepEqual(t, item.ArtistInfo(), &webpic.ArtistInfo{
		Names:       []string{"lonely_artist"},
		PixivURLs:   []string{},
		TwitterURLs: []string{},
	})
	// One pause before the page and one before the artist page.
	assert.Equal(t, len(spy.calls), 2)

	post := func(ids ...int) []string {
		out := []string{}
		for _, id := range ids {
			out = append(out, fmt.Sprintf("https://danbooru.donmai.us/posts/%d", id))
		}
		return out
	}

	tests := []struct {
		limit     int
		want      []string
		wantPages int
	}{
		{0, post(), 0},
		{2, post(10, 9), 1},
		{3, post(10, 9, 8), 1},
		{5, post(10, 9, 8, 7, 6), 2},
		{-1, post(10, 9, 8, 7, 6, 5, 4), 4},
		{100, post(10, 9, 8, 7, 6, 5, 4), 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit %d", tt.limit), func(t *testing.T) {
			before := len(client.Requests())
			have, err := item.ChildrenURLs(ctx, tt.limit)
			assert.NilError(t, err)
			assert.DeepEqual(t, have, tt.want)
			assert.Equal(t, len(client.Requests())-before, tt.wantPages)
		})
	}

	t.Run("page error", func(t *testing.T) {
		client := newClient()
		client.SetResponse("https://danbooru.donmai.us/posts?page=2&tags=lonely_artist", nil, ErrFake)
		session, _ := NewTestSession(t, client)
		item, err := session.URL2WebPic(ctx, base)
		assert.NilError(t, err)

		_, err = item.ChildrenURLs(ctx, -1)
		assert.Assert(t, errors.Is(err, ErrFake), err)
	})
}
