package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// ReferenceKind is the shape a blob reference was given in.
type ReferenceKind int

const (
	// RefURL is an absolute http(s) URL.
	RefURL ReferenceKind = iota
	// RefRootedPath is "/account/container/object".
	RefRootedPath
	// RefBarePath is "account/container/object".
	RefBarePath
	// RefOther is anything else; it is parsed as a URL unchanged.
	RefOther
)

func (k ReferenceKind) String() string {
	switch k {
	case RefURL:
		return "url"
	case RefRootedPath:
		return "rooted-path"
	case RefBarePath:
		return "bare-path"
	default:
		return "other"
	}
}

// ClassifyReference reports which shape ref has relative to account.
// Account matching is case-insensitive.
func ClassifyReference(ref, account string) ReferenceKind {
	if hasHTTPScheme(ref) {
		return RefURL
	}
	if account == "" {
		return RefOther
	}

	trimmed := strings.TrimLeft(ref, "/")
	if !hasPrefixFold(trimmed, account+"/") {
		return RefOther
	}
	if len(trimmed) != len(ref) {
		return RefRootedPath
	}
	return RefBarePath
}

// NormalizeReference rewrites account-rooted paths into absolute URLs on
// https://{authority}. URLs and unrecognised shapes are returned unchanged.
func NormalizeReference(ref, account, authority string) (string, ReferenceKind) {
	kind := ClassifyReference(ref, account)
	switch kind {
	case RefRootedPath, RefBarePath:
		rest := strings.TrimLeft(ref, "/")[len(account):]
		return "https://" + authority + rest, kind
	default:
		return ref, kind
	}
}

// ParseObjectURL splits a path-style object URL into container and object
// name. The object name is returned unescaped.
func ParseObjectURL(rawURL string) (container, object string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrMalformedReference, rawURL, err)
	}
	if !strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrMalformedReference, rawURL)
	}

	container, object, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok || container == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q has no container/object path", ErrMalformedReference, rawURL)
	}
	return container, object, nil
}

// accountNameFromHost returns the host label before the first dot.
func accountNameFromHost(host string) string {
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

func hasHTTPScheme(s string) bool {
	return hasPrefixFold(s, "http://") || hasPrefixFold(s, "https://")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
