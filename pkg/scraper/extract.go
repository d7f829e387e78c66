package scraper

import (
	stdhtml "html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Extraction is tiered and best-effort: the upstream page structure is not
// a stable contract, so several independent strategies attempt to recover
// counts and the first one producing a nonzero follower/following signal
// wins. None of them may fail hard; a page that defeats every strategy
// yields an all-zero extraction.

var (
	metaDescRe     = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']+)["'][^>]*>`)
	followersRe    = regexp.MustCompile(`(?i)([\d,]+)\s+Followers?`)
	followingRe    = regexp.MustCompile(`(?i)([\d,]+)\s+Following`)
	postsRe        = regexp.MustCompile(`(?i)([\d,]+)\s+Posts?`)
	metaNameRe     = regexp.MustCompile(`from\s+([^(]+)\s*\(@`)
	edgeFollowedRe = regexp.MustCompile(`"edge_followed_by":\s*\{[^}]*"count":\s*(\d+)`)
	edgeFollowRe   = regexp.MustCompile(`"edge_follow":\s*\{[^}]*"count":\s*(\d+)`)
	edgeMediaRe    = regexp.MustCompile(`"edge_owner_to_timeline_media":\s*\{[^}]*"count":\s*(\d+)`)
	decodedStatsRe = regexp.MustCompile(`(?i)([\d,]+)\s+Followers?[^<]*?([\d,]+)\s+Following[^<]*?([\d,]+)\s+Posts?`)
	sharedDataRe   = regexp.MustCompile(`(?s)window\._sharedData\s*=\s*(\{.+?\});`)
	titleNameRe    = regexp.MustCompile(`([^(]+)\s*\(@`)
	profileLinkRe  = regexp.MustCompile(`^/([^/?]+)/?$`)
)

// extracted is the output of one strategy. Zero values mean "not found".
type extracted struct {
	displayName string
	avatarURL   string
	bio         string
	followers   int
	following   int
	posts       int
}

func (e extracted) hasCountSignal() bool {
	return e.followers > 0 || e.following > 0
}

// page wraps a fetched body with a lazily shared goquery document. The doc
// is nil when the body is unparseable; strategies must tolerate that.
type page struct {
	body  string
	title string
	doc   *goquery.Document
}

func newPage(body, title string) *page {
	p := &page{body: body, title: title}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		p.doc = doc
	}
	return p
}

type strategy func(p *page) extracted

// extractionTiers are tried in order; the first nonzero follower/following
// signal wins. Order mirrors reliability observed against real pages:
// the og:description meta tag survives most page variants, the embedded
// GraphQL counts come next, then the entity-decoded stats banner, then a
// full sweep of script-tag JSON blobs.
var extractionTiers = []strategy{
	extractMetaDescription,
	extractEdgeCounts,
	extractDecodedStats,
	extractScriptJSON,
}

// extractProfile runs the tiers and then applies cross-cutting
// enrichment (avatar, display name, bio) that does not depend on which
// tier produced the counts.
func extractProfile(p *page, handle string) extracted {
	var out extracted
	for _, tier := range extractionTiers {
		got := tier(p)
		mergeExtracted(&out, got)
		if got.hasCountSignal() {
			break
		}
	}

	// og:image wins over a JSON-embedded photo URL when it points at a
	// real CDN asset; default spacer images (rsrc.php) do not count.
	if ogImage := metaProperty(p, "og:image"); ogImage != "" {
		if strings.Contains(ogImage, "instagram.com") && !strings.Contains(ogImage, "rsrc.php") {
			out.avatarURL = ogImage
		} else if out.avatarURL == "" {
			out.avatarURL = ogImage
		}
	}

	if out.displayName == "" || out.displayName == handle {
		if name := nameFromTitle(p.title); name != "" {
			out.displayName = name
		}
	}
	if out.bio == "" && p.title != "" {
		out.bio = strings.TrimSpace(strings.SplitN(p.title, "(", 2)[0])
	}
	if out.displayName == "" {
		out.displayName = handle
	}
	return out
}

func mergeExtracted(dst *extracted, src extracted) {
	if dst.followers == 0 {
		dst.followers = src.followers
	}
	if dst.following == 0 {
		dst.following = src.following
	}
	if dst.posts == 0 {
		dst.posts = src.posts
	}
	if dst.displayName == "" {
		dst.displayName = src.displayName
	}
	if dst.avatarURL == "" {
		dst.avatarURL = src.avatarURL
	}
	if dst.bio == "" {
		dst.bio = src.bio
	}
}

// extractMetaDescription parses the og:description meta tag, which for a
// profile page reads like "123 Followers, 45 Following, 67 Posts - See
// Instagram photos and videos from Jane Doe (@janedoe)".
func extractMetaDescription(p *page) extracted {
	var content string
	if p.doc != nil {
		content, _ = p.doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}
	if content == "" {
		if m := metaDescRe.FindStringSubmatch(p.body); m != nil {
			content = m[1]
		}
	}
	if content == "" {
		return extracted{}
	}
	content = stdhtml.UnescapeString(content)

	var out extracted
	if m := followersRe.FindStringSubmatch(content); m != nil {
		out.followers = parseCount(m[1])
	}
	if m := followingRe.FindStringSubmatch(content); m != nil {
		out.following = parseCount(m[1])
	}
	if m := postsRe.FindStringSubmatch(content); m != nil {
		out.posts = parseCount(m[1])
	}
	if m := metaNameRe.FindStringSubmatch(content); m != nil {
		out.displayName = strings.TrimSpace(m[1])
	}
	if idx := strings.Index(content, " - "); idx > 0 {
		out.bio = strings.TrimSpace(content[:idx])
	}
	return out
}

// extractEdgeCounts looks for the embedded GraphQL edge counts anywhere in
// the raw HTML.
func extractEdgeCounts(p *page) extracted {
	var out extracted
	if m := edgeFollowedRe.FindStringSubmatch(p.body); m != nil {
		out.followers = parseCount(m[1])
	}
	if m := edgeFollowRe.FindStringSubmatch(p.body); m != nil {
		out.following = parseCount(m[1])
	}
	if m := edgeMediaRe.FindStringSubmatch(p.body); m != nil {
		out.posts = parseCount(m[1])
	}
	return out
}

// extractDecodedStats entity-decodes the page and looks for a combined
// "N Followers ... M Following ... K Posts" run.
func extractDecodedStats(p *page) extracted {
	decoded := stdhtml.UnescapeString(p.body)
	m := decodedStatsRe.FindStringSubmatch(decoded)
	if m == nil {
		return extracted{}
	}
	return extracted{
		followers: parseCount(m[1]),
		following: parseCount(m[2]),
		posts:     parseCount(m[3]),
	}
}

// userJSONPaths are the shapes profile data has been observed under inside
// script-tag JSON over the years, newest first.
var userJSONPaths = []string{
	"entry_data.ProfilePage.0.graphql.user",
	"graphql.user",
	"data.user",
	"user",
}

// extractScriptJSON sweeps every script tag for either raw edge-count
// patterns or a parseable user object.
func extractScriptJSON(p *page) extracted {
	if p.doc == nil {
		return extracted{}
	}
	var out extracted
	p.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := s.Contents().Text()
		if content == "" {
			return true
		}

		got := extractEdgeCounts(&page{body: content})
		if got.hasCountSignal() {
			out = got
			return false
		}

		trimmed := strings.TrimSpace(content)
		if !strings.HasPrefix(trimmed, "{") || len(trimmed) < 100 || !gjson.Valid(trimmed) {
			return true
		}
		for _, path := range userJSONPaths {
			user := gjson.Get(trimmed, path)
			if !user.Exists() {
				continue
			}
			got := extracted{
				followers:   firstInt(user, "edge_followed_by.count", "follower_count", "followers_count"),
				following:   firstInt(user, "edge_follow.count", "following_count"),
				posts:       firstInt(user, "edge_owner_to_timeline_media.count", "media_count", "posts_count"),
				avatarURL:   firstString(user, "profile_pic_url_hd", "profile_pic_url"),
				bio:         firstString(user, "biography", "bio"),
				displayName: firstString(user, "full_name", "name"),
			}
			if got.hasCountSignal() {
				out = got
				return false
			}
		}
		return true
	})
	return out
}

// extractMemberLists pulls best-effort follower/following username lists
// from the _sharedData blob, when the page happens to embed edges. Most
// pages do not; an empty list is the normal case and must never be read as
// "zero relations".
func extractMemberLists(p *page) (followers, following []string) {
	m := sharedDataRe.FindStringSubmatch(p.body)
	if m == nil {
		return nil, nil
	}
	user := gjson.Get(m[1], "entry_data.ProfilePage.0.graphql.user")
	if !user.Exists() {
		return nil, nil
	}
	for _, edge := range user.Get("edge_followed_by.edges").Array() {
		if u := edge.Get("node.username").String(); u != "" {
			followers = append(followers, u)
		}
	}
	for _, edge := range user.Get("edge_follow.edges").Array() {
		if u := edge.Get("node.username").String(); u != "" {
			following = append(following, u)
		}
	}
	return followers, following
}

// nonProfilePaths are link targets on a members page that are site chrome,
// not usernames.
var nonProfilePaths = map[string]bool{
	"explore":  true,
	"accounts": true,
	"direct":   true,
	"reels":    true,
}

// extractProfileLinks collects usernames linked from a followers/following
// page, skipping posts, reels, stories and site chrome.
func extractProfileLinks(p *page, selfHandle string) []string {
	if p.doc == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "/") ||
			strings.Contains(href, "/p/") ||
			strings.Contains(href, "/reel/") ||
			strings.Contains(href, "/stories/") {
			return
		}
		m := profileLinkRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		u := m[1]
		if u == selfHandle || nonProfilePaths[u] || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	})
	return out
}

func metaProperty(p *page, property string) string {
	if p.doc == nil {
		return ""
	}
	content, _ := p.doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return content
}

func nameFromTitle(title string) string {
	if m := titleNameRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func firstInt(r gjson.Result, paths ...string) int {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return int(v.Int())
		}
	}
	return 0
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
