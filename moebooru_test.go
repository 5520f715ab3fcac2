package webpic_test

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"webpic"

	"gotest.tools/assert"
)

func moebooruPage(calls ...string) []byte {
	return []byte("<html><body><script type=\"text/javascript\">\n" +
		strings.Join(calls, "\n") +
		"\n</script></body></html>")
}

func TestMoebooru_Child(t *testing.T) {
	ctx := context.Background()

	t.Run("yande.re post with wiki artist", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/wiki/show?title=someartist", ReadSample(t, "wiki/someartist.html"), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/post/show/1001")
		assert.NilError(t, err)

		assert.Assert(t, item.IsChild())
		assert.DeepEqual(t, item.FileURLs(), []string{"https://cdn.example/img/123.jpg"})
		assert.DeepEqual(t, item.FileNames(), []string{"123.jpg"})
		assert.Equal(t, item.SourceURL(), "https://www.pixiv.net/artworks/88812345")
		assert.DeepEqual(t, item.Tags(), []string{"blue_sky", "someartist"}, AnyOrder)
		assert.DeepEqual(t, item.ArtistInfo(), &webpic.ArtistInfo{
			Names:       []string{"someartist", "some_artist_alias", "あーと"},
			PixivURLs:   []string{"https://www.pixiv.net/users/424242"},
			TwitterURLs: []string{"https://twitter.com/some_artist"},
		})
	})

	t.Run("konachan post in relaxed JSON", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://konachan.com/wiki/show?title=kona_artist", []byte("<html><body></body></html>"), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://konachan.com/post/show/2002")
		assert.NilError(t, err)

		assert.DeepEqual(t, item.FileURLs(), []string{"https://konachan.com/image/ffff/Konachan.com%20-%202002.png"})
		assert.DeepEqual(t, item.FileNames(), []string{"Konachan.com - 2002.png"})
		assert.Equal(t, item.SourceURL(), "https://www.pixiv.net/artworks/4455667")
		assert.DeepEqual(t, item.Tags(), []string{"kona_artist", "night", "stars"}, AnyOrder)
		assert.DeepEqual(t, item.ArtistInfo().Names, []string{"kona_artist"})
	})

	t.Run("post without artist tag", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/post/show/5", moebooruPage(
			`Post.register_resp({"posts":[{"id":5,"source":"","file_url":"https://files.yande.re/5.png"}],"tags":{"scenery":"general"}});`,
		), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/post/show/5")
		assert.NilError(t, err)
		assert.Assert(t, !item.HasArtist())
		assert.Assert(t, item.ArtistInfo() == nil)
		assert.Equal(t, item.SourceURL(), "")
		assert.DeepEqual(t, client.Requests(), []string{"https://yande.re/post/show/5"})
	})

	t.Run("several artist tags pick the first name", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/post/show/6", moebooruPage(
			`Post.register_resp({"posts":[{"id":6,"file_url":"https://files.yande.re/6.png"}],"tags":{"zed":"artist","alpha":"artist"}});`,
		), nil)
		client.SetResponse("https://yande.re/wiki/show?title=alpha", []byte("<html></html>"), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/post/show/6")
		assert.NilError(t, err)
		assert.DeepEqual(t, item.ArtistInfo().Names, []string{"alpha"})
	})

	t.Run("page without register data", func(t *testing.T) {
		session, _ := NewTestSession(t, NewTestClient())
		_, err := session.URL2WebPic(ctx, "https://yande.re/post/show/1002")
		assert.Assert(t, errors.Is(err, webpic.ErrUnparseableDocument), err)
	})

	t.Run("register data that does not parse", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/post/show/7", moebooruPage(`Post.register_resp({"posts": [});`), nil)
		session, _ := NewTestSession(t, client)
		_, err := session.URL2WebPic(ctx, "https://yande.re/post/show/7")
		assert.Assert(t, errors.Is(err, webpic.ErrUnparseableDocument), err)
	})
}

func TestMoebooru_PostList(t *testing.T) {
	ctx := context.Background()
	const tags = `Post.register_tags({"someartist":"artist","blue_sky":"general"});`
	post := func(id int) string {
		return fmt.Sprintf(`Post.register({"id":%d,"tags":"someartist blue_sky"});`, id)
	}

	client := NewTestClient()
	client.SetResponse("https://yande.re/post?tags=someartist", moebooruPage(tags, post(30)), nil)
	client.SetResponse("https://yande.re/wiki/show?title=someartist", ReadSample(t, "wiki/someartist.html"), nil)
	client.SetResponse("https://yande.re/post?page=1&tags=someartist", moebooruPage(tags, post(30), post(29)), nil)
	client.SetResponse("https://yande.re/post?page=2&tags=someartist", moebooruPage(tags, post(28)), nil)
	client.SetResponse("https://yande.re/post?page=3&tags=someartist", moebooruPage(tags), nil)
	session, _ := NewTestSession(t, client)

	item, err := session.URL2WebPic(ctx, "https://yande.re/post?tags=someartist")
	assert.NilError(t, err)
	assert.Assert(t, item.IsParent())
	assert.DeepEqual(t, item.FileURLs(), []string{})
	assert.DeepEqual(t, item.Tags(), []string{"blue_sky", "someartist"}, AnyOrder)
	assert.DeepEqual(t, item.ArtistInfo().PixivURLs, []string{"https://www.pixiv.net/users/424242"})

	have, err := item.ChildrenURLs(ctx, -1)
	assert.NilError(t, err)
	assert.DeepEqual(t, have, []string{
		"https://yande.re/post/show/30",
		"https://yande.re/post/show/29",
		"https://yande.re/post/show/28",
	})

	have, err = item.ChildrenURLs(ctx, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, have, []string{"https://yande.re/post/show/30"})

	t.Run("page without register data", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/post?tags=x", []byte("<html><body>nothing here</body></html>"), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/post?tags=x")
		assert.Assert(t, errors.Is(err, webpic.ErrUnparseableDocument), err)
		assert.Assert(t, item == nil)
	})

	t.Run("register calls sharing one line", func(t *testing.T) {
		const line = `Post.register_tags({"blue_sky":"general"}); Post.register({"id":1}); Post.register({"id":2});`
		client := NewTestClient()
		client.SetResponse("https://yande.re/post?tags=blue_sky", moebooruPage(line), nil)
		client.SetResponse("https://yande.re/post?page=1&tags=blue_sky", moebooruPage(line), nil)
		client.SetResponse("https://yande.re/post?page=2&tags=blue_sky", moebooruPage(`Post.register_tags({"blue_sky":"general"});`), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/post?tags=blue_sky")
		assert.NilError(t, err)
		assert.DeepEqual(t, item.Tags(), []string{"blue_sky"})

		have, err := item.ChildrenURLs(ctx, -1)
		assert.NilError(t, err)
		assert.DeepEqual(t, have, []string{
			"https://yande.re/post/show/1",
			"https://yande.re/post/show/2",
		})
	})
}

func TestMoebooru_Pool(t *testing.T) {
	ctx := context.Background()
	pool := func(ids ...int) []byte {
		posts := make([]string, 0, len(ids))
		for _, id := range ids {
			posts = append(posts, fmt.Sprintf(`{"id":%d}`, id))
		}
		return moebooruPage(`Post.register_resp({"posts":[` + strings.Join(posts, ",") + `],"tags":{"scenery":"general"}});`)
	}

	t.Run("pages until the last page repeats", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/pool/show/77", pool(11, 12), nil)
		client.SetResponse("https://yande.re/pool/show/77?page=1", pool(11, 12), nil)
		client.SetResponse("https://yande.re/pool/show/77?page=2", pool(13), nil)
		client.SetResponse("https://yande.re/pool/show/77?page=3", pool(13), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/pool/show/77")
		assert.NilError(t, err)
		assert.Assert(t, item.IsParent())
		assert.DeepEqual(t, item.Tags(), []string{"scenery"})

		have, err := item.ChildrenURLs(ctx, -1)
		assert.NilError(t, err)
		assert.DeepEqual(t, have, []string{
			"https://yande.re/post/show/11",
			"https://yande.re/post/show/12",
			"https://yande.re/post/show/13",
		})
	})

	t.Run("dead pool returns nothing", func(t *testing.T) {
		client := NewTestClient()
		client.SetResponse("https://yande.re/pool/show/78", pool(), nil)
		client.SetResponse("https://yande.re/pool/show/78?page=1", ReadSample(t, "yande.re/post/show/1002"), nil)
		session, _ := NewTestSession(t, client)

		item, err := session.URL2WebPic(ctx, "https://yande.re/pool/show/78")
		assert.NilError(t, err)

		have, err := item.ChildrenURLs(ctx, -1)
		assert.NilError(t, err)
		assert.DeepEqual(t, have, []string{})
	})
}

func TestNormalizeSourceURL(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"https://www.pixiv.net/en/artworks/88812345", "https://www.pixiv.net/artworks/88812345"},
		{"https://www.pixiv.net/artworks/1", "https://www.pixiv.net/artworks/1"},
		{"http://www.pixiv.net/member_illust.php?mode=medium&illust_id=4455667", "https://www.pixiv.net/artworks/4455667"},
		{"https://i.pximg.net/img-original/img/2020/01/01/00/00/00/78901234_p0.jpg", "https://www.pixiv.net/artworks/78901234"},
		{"https://twitter.com/someone/status/1", "https://twitter.com/someone/status/1"},
		{"  https://example.com/a.png ", "https://example.com/a.png"},
		{"", ""},
		{"not a url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, webpic.NormalizeSourceURL(tt.source), tt.want)
		})
	}
}
