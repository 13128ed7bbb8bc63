package web

import (
	"net/url"
	"strings"
)

// SafeRedirect returns path when it is an in-app absolute path, else "".
// Protocol-relative ("//host"), backslash and scheme-bearing values are
// rejected so the login flow cannot be turned into an open redirect.
func SafeRedirect(path string) string {
	if path == "" || path[0] != '/' || strings.HasPrefix(path, "//") {
		return ""
	}
	if strings.ContainsAny(path, "\\\r\n\t") {
		return ""
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return ""
	}
	return path
}

// AppBaseFromRedirectURI derives the public app URL from the OIDC callback
// URL: everything before /auth/callback, or the origin otherwise.
func AppBaseFromRedirectURI(redirectURI string) string {
	if i := strings.Index(redirectURI, "/auth/callback"); i > 0 {
		return redirectURI[:i]
	}
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// normalizeDomains lowercases, trims and prefixes "@" so entries compare
// against the domain part of an address including its "@".
func normalizeDomains(domains []string) []string {
	var out []string
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || d == "@" {
			continue
		}
		if !strings.HasPrefix(d, "@") {
			d = "@" + d
		}
		out = append(out, d)
	}
	return out
}

// emailDomainAllowed reports whether hint is an address in one of domains.
// Values that are not addresses are never allowed.
func emailDomainAllowed(hint string, domains []string) bool {
	hint = strings.ToLower(strings.TrimSpace(hint))
	at := strings.LastIndexByte(hint, '@')
	if at <= 0 || at == len(hint)-1 || strings.ContainsAny(hint, " \t") {
		return false
	}
	domain := hint[at:]
	for _, d := range domains {
		if domain == d {
			return true
		}
	}
	return false
}
