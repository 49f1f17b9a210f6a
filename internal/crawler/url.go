package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is the scheme+host pair that scopes robots and rate-limit state.
type Origin struct {
	Scheme string
	Host   string
}

// String renders the origin as scheme://host.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// URL returns the origin joined with an absolute path.
func (o Origin) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return o.String() + path
}

// ParseOrigin derives the origin of rawURL. It lowercases the scheme and host
// and drops default ports so equivalent URLs share state.
func ParseOrigin(rawURL string) (Origin, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("parse url: %w", err)
	}
	return OriginOf(u)
}

// OriginOf derives the origin of an already parsed URL.
func OriginOf(u *url.URL) (Origin, error) {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return Origin{}, fmt.Errorf("url %q has no scheme or host", u)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		host = strings.TrimSuffix(host, ":443")
	}
	return Origin{Scheme: scheme, Host: host}, nil
}

// RequestPath returns the path plus query used for robots matching.
func RequestPath(u *url.URL) string {
	if u == nil {
		return "/"
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
