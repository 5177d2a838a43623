package service

import (
	"regexp"
	"strings"

	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
)

// urlPattern accepts http(s) and ftp(s) URLs with a dotted host or IPv4
// address; the scheme is optional.
var urlPattern = regexp.MustCompile(`(?i)^((ht|f)tps?://)?([-.a-z0-9_]+\.([a-z]{2,4}|\d{1,3})(:\d{2,5})?)(/.*)?$`)

var schemePattern = regexp.MustCompile(`(?i)^(ht|f)tps?://`)

// NormalizeURL validates raw and prefixes http:// when it has no scheme.
func NormalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", domainerrors.ValidationWithDetails("url is required", map[string]string{"url": "is required"})
	}
	if !urlPattern.MatchString(u) {
		return "", domainerrors.ValidationWithDetails("invalid url", map[string]string{"url": "must be a valid URL"})
	}
	if !schemePattern.MatchString(u) {
		u = "http://" + u
	}
	return u, nil
}

// lookupURL normalizes raw for exact-match lookups. Input that fails
// validation is looked up as given, since bulk import stores such URLs
// unchanged.
func lookupURL(raw string) string {
	if u, err := NormalizeURL(raw); err == nil {
		return u
	}
	return strings.TrimSpace(raw)
}
