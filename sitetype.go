package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// SiteType identifies which supported site a URL belongs to.
type SiteType int

const (
	Unknown SiteType = iota
	Pixiv
	Twitter
	Danbooru
	Yandere
	Konachan
	Weibo
	EHentai
)

// Role tells whether a page enumerates many items (Parent) or is a single
// item (Child).
type Role int

const (
	RoleUnknown Role = iota
	RoleParent
	RoleChild
)

// siteDomains is matched in order against the host.  CDN domains map to the
// same site as their web domain.
var siteDomains = []struct {
	substring string
	site      SiteType
}{
	{"pixiv.net", Pixiv},
	{"pximg.net", Pixiv},
	{"twitter.com", Twitter},
	{"twimg.com", Twitter},
	{"danbooru.donmai.us", Danbooru},
	{"yande.re", Yandere},
	{"konachan.com", Konachan},
	{"weibo.com", Weibo},
	{"weibo.cn", Weibo},
	{"e-hentai.org", EHentai},
}

var siteInfo = map[SiteType]struct {
	name   string
	domain string
}{
	Unknown:  {"unknown", ""},
	Pixiv:    {"pixiv", "www.pixiv.net"},
	Twitter:  {"twitter", "twitter.com"},
	Danbooru: {"danbooru", "danbooru.donmai.us"},
	Yandere:  {"yandere", "yande.re"},
	Konachan: {"konachan", "konachan.com"},
	Weibo:    {"weibo", "m.weibo.cn"},
	EHentai:  {"ehentai", "e-hentai.org"},
}

// Classify maps a URL to the site it belongs to by matching substrings of its
// host.  It never fails: anything unrecognized, including garbage input, is
// Unknown.
//
// Parameters:
//   - rawURL: The URL to classify.  A missing scheme is tolerated.
//
// Returns:
//   - SiteType: The matching site, or Unknown
func Classify(rawURL string) SiteType {
	host := hostOf(rawURL)
	if host == "" {
		return Unknown
	}
	for _, d := range siteDomains {
		if strings.Contains(host, d.substring) {
			return d.site
		}
	}
	return Unknown
}

// ParseSiteType is the inverse of SiteType.String.  Matching is case
// insensitive.  Unrecognized names are Unknown.
func ParseSiteType(name string) SiteType {
	name = strings.ToLower(strings.TrimSpace(name))
	for site, info := range siteInfo {
		if info.name == name {
			return site
		}
	}
	return Unknown
}

// Domain returns the canonical domain used when building URLs for the site.
func (s SiteType) Domain() string {
	return siteInfo[s].domain
}

func (s SiteType) String() string {
	info, ok := siteInfo[s]
	if !ok {
		return "unknown"
	}
	return info.name
}

func (r Role) String() string {
	switch r {
	case RoleParent:
		return "parent"
	case RoleChild:
		return "child"
	default:
		return "unknown"
	}
}

// hostOf returns the lowercased host of rawURL, or "" if it has none.
func hostOf(rawURL string) string {
	u, err := parseURL(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// parseURL parses and normalizes a user-supplied URL, prepending https:// when
// the scheme is missing.
func parseURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + strings.TrimPrefix(rawURL, "//")
	}
	normalized, err := purell.NormalizeURLString(rawURL, purell.FlagsSafe)
	if err != nil {
		return nil, err
	}
	return url.Parse(normalized)
}
