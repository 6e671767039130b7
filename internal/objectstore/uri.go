package objectstore

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// URI is a parsed opaque object location of the form
// <scheme>://<bucket>/<path>.
type URI struct {
	Scheme string
	Bucket string
	Path   string
}

func (u URI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Path)
}

// ParseURI parses an object URI and rejects path-traversal segments.
// It does not check the bucket allow-list — callers do that with
// AllowedBucket, since the allow-list is store-instance configuration, not
// an intrinsic property of the URI.
func ParseURI(raw string) (URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("malformed object uri %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return URI{}, fmt.Errorf("object uri %q must be <scheme>://<bucket>/<path>", raw)
	}

	p := strings.TrimPrefix(parsed.Path, "/")
	if p == "" {
		return URI{}, fmt.Errorf("object uri %q is missing a path", raw)
	}
	if hasTraversal(p) {
		return URI{}, fmt.Errorf("object uri %q contains a path traversal segment", raw)
	}

	return URI{Scheme: parsed.Scheme, Bucket: parsed.Host, Path: p}, nil
}

func hasTraversal(p string) bool {
	clean := path.Clean("/" + p)
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return true
		}
	}
	// path.Clean collapses ".." but a raw string can still smuggle one
	// before cleaning (e.g. "a/../../b") — check the original too.
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// AllowedBucket reports whether bucket is present in the configured
// allow-list.
func AllowedBucket(bucket string, allowList []string) bool {
	for _, b := range allowList {
		if b == bucket {
			return true
		}
	}
	return false
}
