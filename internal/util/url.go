package util

import (
	"net/url"
	"strings"
)

// urlParamDrops maps a platform id to the query parameters stripped from its
// URLs before they are used as identity keys. Weibo rotates band_rank on
// every board refresh, so two observations of the same story never compare
// equal without stripping it.
var urlParamDrops = map[string][]string{
	"weibo": {"band_rank"},
}

// SetURLParamDrops merges extra per-platform drop rules into the built-in
// table. Intended to be called once during startup, before any request or
// crawl traffic.
func SetURLParamDrops(rules map[string][]string) {
	for platform, params := range rules {
		urlParamDrops[platform] = append(urlParamDrops[platform], params...)
	}
}

// CanonicalizeURL strips the platform's volatile query parameters from raw,
// preserving the order of everything it keeps. Empty input stays empty and
// URLs that do not parse are returned unchanged. The result is stable:
// canonicalizing twice equals canonicalizing once.
func CanonicalizeURL(raw, platformID string) string {
	if raw == "" {
		return ""
	}
	drops := urlParamDrops[platformID]
	if len(drops) == 0 {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		if dropKey(key, drops) {
			continue
		}
		kept = append(kept, pair)
	}

	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

func dropKey(key string, drops []string) bool {
	for _, d := range drops {
		if key == d {
			return true
		}
	}
	return false
}
