package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const (
	pixivAppAPIBase   = "https://app-api.pixiv.net"
	pixivAppUserAgent = "PixivIOSApp/7.13.3 (iOS 14.6; iPhone13,2)"
	// pximg.net refuses image requests without this referer.
	pixivImageReferer = "https://app-api.pixiv.net/"
)

// PixivAPI is the part of the authenticated pixiv client the adapters use.
// Token acquisition and refresh belong to the implementation.
type PixivAPI interface {
	// IllustDetail returns one illustration with its page URLs.
	IllustDetail(ctx context.Context, illustID int64) (*PixivIllust, error)
	// UserDetail returns a user and their profile links.
	UserDetail(ctx context.Context, userID int64) (*PixivUserDetail, error)
	// UserIllusts returns one page of a user's illustrations starting at offset.
	UserIllusts(ctx context.Context, userID int64, offset int) (*PixivIllustList, error)
	// Download saves fileURL to destPath.  It returns false without error
	// when destPath already exists.
	Download(ctx context.Context, fileURL, destPath string) (bool, error)
}

// PixivUser is the user object embedded in most app API responses.
type PixivUser struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account"`
	Comment string `json:"comment"`
}

// PixivProfile holds the external links of a user profile.
type PixivProfile struct {
	TwitterAccount string `json:"twitter_account"`
	TwitterURL     string `json:"twitter_url"`
}

// PixivUserDetail is the /v1/user/detail response.
type PixivUserDetail struct {
	User    PixivUser    `json:"user"`
	Profile PixivProfile `json:"profile"`
}

// PixivTag is one illustration tag.
type PixivTag struct {
	Name           string `json:"name"`
	TranslatedName string `json:"translated_name"`
}

// PixivImageURLs holds the original size URL of one page.
type PixivImageURLs struct {
	Original string `json:"original"`
}

// PixivMetaPage is one page of a multi-page illustration.
type PixivMetaPage struct {
	ImageURLs PixivImageURLs `json:"image_urls"`
}

// PixivMetaSinglePage holds the original URL of a single-page illustration.
type PixivMetaSinglePage struct {
	OriginalImageURL string `json:"original_image_url"`
}

// PixivIllust is one illustration.  Single-page works fill MetaSinglePage,
// multi-page works fill MetaPages.
type PixivIllust struct {
	ID             int64               `json:"id"`
	Title          string              `json:"title"`
	Type           string              `json:"type"`
	User           PixivUser           `json:"user"`
	Tags           []PixivTag          `json:"tags"`
	PageCount      int                 `json:"page_count"`
	MetaSinglePage PixivMetaSinglePage `json:"meta_single_page"`
	MetaPages      []PixivMetaPage     `json:"meta_pages"`
	Visible        bool                `json:"visible"`
}

// PixivIllustList is one page of illustrations.  NextURL is empty on the
// last page.
type PixivIllustList struct {
	Illusts []PixivIllust `json:"illusts"`
	NextURL string        `json:"next_url"`
}

// PixivUserPreview is a user search hit with a few of their works.
type PixivUserPreview struct {
	User    PixivUser     `json:"user"`
	Illusts []PixivIllust `json:"illusts"`
}

// PixivUserPreviewList is one page of user search hits.
type PixivUserPreviewList struct {
	UserPreviews []PixivUserPreview `json:"user_previews"`
	NextURL      string             `json:"next_url"`
}

type pixivErrorBody struct {
	Error struct {
		UserMessage string `json:"user_message"`
		Message     string `json:"message"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// PixivAppClient talks to the pixiv app API with a bearer token obtained
// elsewhere.
type PixivAppClient struct {
	logger *slog.Logger
	client *resty.Client
}

// NewPixivAppClient creates a client that authenticates every request with
// accessToken.
//
// Parameters:
//   - logger: Logger instance
//   - accessToken: OAuth access token for the app API
//
// Returns:
//   - *PixivAppClient: A client ready for use
func NewPixivAppClient(logger *slog.Logger, accessToken string) *PixivAppClient {
	client := resty.New().
		SetBaseURL(pixivAppAPIBase).
		SetTimeout(httpTimeout).
		SetAuthToken(accessToken).
		SetHeader("User-Agent", pixivAppUserAgent).
		SetHeader("App-OS", "ios").
		SetHeader("Accept-Language", "en-us")
	return &PixivAppClient{
		logger: logger,
		client: client,
	}
}

// SetBaseURL points the client at another API host.  Used by tests.
func (p *PixivAppClient) SetBaseURL(baseURL string) {
	p.client.SetBaseURL(baseURL)
}

// IllustDetail fetches /v1/illust/detail for illustID.
func (p *PixivAppClient) IllustDetail(ctx context.Context, illustID int64) (*PixivIllust, error) {
	var out struct {
		Illust PixivIllust `json:"illust"`
	}
	err := p.getJSON(ctx, "/v1/illust/detail", map[string]string{
		"illust_id": strconv.FormatInt(illustID, 10),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Illust, nil
}

// UserDetail fetches /v1/user/detail for userID.
func (p *PixivAppClient) UserDetail(ctx context.Context, userID int64) (*PixivUserDetail, error) {
	var out PixivUserDetail
	err := p.getJSON(ctx, "/v1/user/detail", map[string]string{
		"user_id": strconv.FormatInt(userID, 10),
		"filter":  "for_ios",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UserIllusts fetches one page of /v1/user/illusts for userID.
func (p *PixivAppClient) UserIllusts(ctx context.Context, userID int64, offset int) (*PixivIllustList, error) {
	var out PixivIllustList
	err := p.getJSON(ctx, "/v1/user/illusts", map[string]string{
		"user_id": strconv.FormatInt(userID, 10),
		"type":    "illust",
		"filter":  "for_ios",
		"offset":  strconv.Itoa(offset),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchIllusts searches illustrations whose tags partially match word,
// newest first.
func (p *PixivAppClient) SearchIllusts(ctx context.Context, word string, offset int) (*PixivIllustList, error) {
	var out PixivIllustList
	err := p.getJSON(ctx, "/v1/search/illust", map[string]string{
		"word":          word,
		"search_target": "partial_match_for_tags",
		"sort":          "date_desc",
		"filter":        "for_ios",
		"offset":        strconv.Itoa(offset),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchUsers searches users by name.
func (p *PixivAppClient) SearchUsers(ctx context.Context, word string, offset int) (*PixivUserPreviewList, error) {
	var out PixivUserPreviewList
	err := p.getJSON(ctx, "/v1/search/user", map[string]string{
		"word":   word,
		"filter": "for_ios",
		"offset": strconv.Itoa(offset),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FollowUser follows userID publicly.
func (p *PixivAppClient) FollowUser(ctx context.Context, userID int64) error {
	return p.postForm(ctx, "/v1/user/follow/add", map[string]string{
		"user_id":  strconv.FormatInt(userID, 10),
		"restrict": "public",
	})
}

// UnfollowUser removes userID from the followed users.
func (p *PixivAppClient) UnfollowUser(ctx context.Context, userID int64) error {
	return p.postForm(ctx, "/v1/user/follow/delete", map[string]string{
		"user_id": strconv.FormatInt(userID, 10),
	})
}

// Download saves fileURL to destPath with the referer pximg.net requires.
// It returns false without fetching when destPath already exists.
func (p *PixivAppClient) Download(ctx context.Context, fileURL, destPath string) (bool, error) {
	_, err := os.Stat(destPath)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", destPath, err)
	}

	p.logger.Debug("PixivAppClient download", "uri", fileURL)
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Referer", pixivImageReferer).
		Get(fileURL)
	if err != nil {
		return false, fmt.Errorf("GET failed: %w", err)
	}
	data, err := checkResponse(resp)
	if err != nil {
		return false, err
	}

	err = WriteAndFsyncFile(destPath, data)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PixivAppClient) getJSON(ctx context.Context, endpoint string, params map[string]string, v any) error {
	p.logger.Debug("PixivAppClient GET", "endpoint", endpoint, "params", params)
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("pixiv %s: %w", endpoint, err)
	}
	return decodePixivResponse(endpoint, resp, v)
}

func (p *PixivAppClient) postForm(ctx context.Context, endpoint string, form map[string]string) error {
	p.logger.Debug("PixivAppClient POST", "endpoint", endpoint)
	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("pixiv %s: %w", endpoint, err)
	}
	return decodePixivResponse(endpoint, resp, nil)
}

func decodePixivResponse(endpoint string, resp *resty.Response, v any) error {
	if resp.IsError() {
		var body pixivErrorBody
		_ = json.Unmarshal(resp.Body(), &body)
		msg := body.Error.Message
		if msg == "" {
			msg = body.Error.UserMessage
		}
		return fmt.Errorf("%w: pixiv %s: %s: %s", ErrUpstream, endpoint, resp.Status(), msg)
	}
	if v == nil {
		return nil
	}
	return decodeJSON(endpoint, resp.Body(), v)
}
