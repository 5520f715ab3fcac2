package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	twitterAPIBase = "https://api.twitter.com/1.1"
	// The largest page the user timeline endpoint returns.
	twitterTimelinePageSize = 200
)

// TwitterAPI is the part of the authenticated twitter client the adapters
// use.
type TwitterAPI interface {
	// Status returns one tweet with its extended entities.
	Status(ctx context.Context, id string) (*Tweet, error)
	// User returns the profile of screenName.
	User(ctx context.Context, screenName string) (*TwitterUser, error)
	// UserTimeline returns up to count tweets older than or equal to maxID.
	// An empty maxID starts from the newest tweet.
	UserTimeline(ctx context.Context, screenName, maxID string, count int) ([]Tweet, error)
}

// TwitterURLEntity maps a t.co link to the URL it stands for.
type TwitterURLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

// TwitterURLSet is a list of link entities.
type TwitterURLSet struct {
	URLs []TwitterURLEntity `json:"urls"`
}

// TwitterUserEntities holds the links of the profile URL field and bio.
type TwitterUserEntities struct {
	URL         TwitterURLSet `json:"url"`
	Description TwitterURLSet `json:"description"`
}

// TwitterUser is a v1.1 user object.
type TwitterUser struct {
	IDStr       string              `json:"id_str"`
	Name        string              `json:"name"`
	ScreenName  string              `json:"screen_name"`
	Description string              `json:"description"`
	Entities    TwitterUserEntities `json:"entities"`
}

// TwitterHashtag is one hashtag without the leading #.
type TwitterHashtag struct {
	Text string `json:"text"`
}

// TwitterMedia is one attached photo or video.
type TwitterMedia struct {
	Type          string `json:"type"`
	MediaURL      string `json:"media_url"`
	MediaURLHTTPS string `json:"media_url_https"`
}

// TweetEntities holds the hashtags of a tweet.
type TweetEntities struct {
	Hashtags []TwitterHashtag `json:"hashtags"`
}

// TweetExtendedEntities holds every attached media item.
type TweetExtendedEntities struct {
	Media []TwitterMedia `json:"media"`
}

// Tweet is a v1.1 status in extended mode.  ExtendedEntities is nil when
// nothing is attached.
type Tweet struct {
	IDStr            string                 `json:"id_str"`
	FullText         string                 `json:"full_text"`
	User             TwitterUser            `json:"user"`
	Entities         TweetEntities          `json:"entities"`
	ExtendedEntities *TweetExtendedEntities `json:"extended_entities"`
}

type twitterErrorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// TwitterRESTClient calls the v1.1 REST API with a bearer token obtained
// elsewhere.
type TwitterRESTClient struct {
	logger *slog.Logger
	client *resty.Client
}

// NewTwitterRESTClient creates a client that authenticates every request with
// bearerToken.
//
// Parameters:
//   - logger: Logger instance
//   - bearerToken: OAuth2 bearer token
//
// Returns:
//   - *TwitterRESTClient: A client ready for use
func NewTwitterRESTClient(logger *slog.Logger, bearerToken string) *TwitterRESTClient {
	client := resty.New().
		SetBaseURL(twitterAPIBase).
		SetTimeout(httpTimeout).
		SetAuthToken(bearerToken)
	return &TwitterRESTClient{
		logger: logger,
		client: client,
	}
}

// SetBaseURL points the client at another API host.  Used by tests.
func (t *TwitterRESTClient) SetBaseURL(baseURL string) {
	t.client.SetBaseURL(baseURL)
}

// Status fetches statuses/show for id.
func (t *TwitterRESTClient) Status(ctx context.Context, id string) (*Tweet, error) {
	var out Tweet
	err := t.call(ctx, resty.MethodGet, "/statuses/show.json", map[string]string{
		"id":         id,
		"tweet_mode": "extended",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// User fetches users/show for screenName.
func (t *TwitterRESTClient) User(ctx context.Context, screenName string) (*TwitterUser, error) {
	var out TwitterUser
	err := t.call(ctx, resty.MethodGet, "/users/show.json", map[string]string{
		"screen_name": screenName,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UserTimeline fetches statuses/user_timeline without retweets.
func (t *TwitterRESTClient) UserTimeline(ctx context.Context, screenName, maxID string, count int) ([]Tweet, error) {
	params := map[string]string{
		"screen_name": screenName,
		"count":       strconv.Itoa(count),
		"tweet_mode":  "extended",
		"include_rts": "false",
	}
	if maxID != "" {
		params["max_id"] = maxID
	}
	var out []Tweet
	err := t.call(ctx, resty.MethodGet, "/statuses/user_timeline.json", params, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchTweets runs a standard search.  An empty maxID starts from the newest
// match.
func (t *TwitterRESTClient) SearchTweets(ctx context.Context, query, maxID string) ([]Tweet, error) {
	params := map[string]string{
		"q":          query,
		"tweet_mode": "extended",
		"count":      "100",
	}
	if maxID != "" {
		params["max_id"] = maxID
	}
	var out struct {
		Statuses []Tweet `json:"statuses"`
	}
	err := t.call(ctx, resty.MethodGet, "/search/tweets.json", params, &out)
	if err != nil {
		return nil, err
	}
	return out.Statuses, nil
}

// SearchUsers fetches one page of users/search for query.
func (t *TwitterRESTClient) SearchUsers(ctx context.Context, query string, page int) ([]TwitterUser, error) {
	var out []TwitterUser
	err := t.call(ctx, resty.MethodGet, "/users/search.json", map[string]string{
		"q":    query,
		"page": strconv.Itoa(page),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Follow follows screenName.
func (t *TwitterRESTClient) Follow(ctx context.Context, screenName string) error {
	return t.call(ctx, resty.MethodPost, "/friendships/create.json", map[string]string{
		"screen_name": screenName,
	}, nil)
}

// Unfollow stops following screenName.
func (t *TwitterRESTClient) Unfollow(ctx context.Context, screenName string) error {
	return t.call(ctx, resty.MethodPost, "/friendships/destroy.json", map[string]string{
		"screen_name": screenName,
	}, nil)
}

func (t *TwitterRESTClient) call(ctx context.Context, method, endpoint string, params map[string]string, v any) error {
	t.logger.Debug("TwitterRESTClient request", "method", method, "endpoint", endpoint, "params", params)
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("twitter %s: %w", endpoint, err)
	}

	if resp.IsError() {
		var body twitterErrorBody
		_ = json.Unmarshal(resp.Body(), &body)
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
		}
		return fmt.Errorf("%w: twitter %s: %s: %s", ErrUpstream, endpoint, resp.Status(), strings.Join(msgs, "; "))
	}
	if v == nil {
		return nil
	}
	return decodeJSON(endpoint, resp.Body(), v)
}
