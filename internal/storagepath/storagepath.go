// Package storagepath parses object keys of the form
// <visibility>/<owner>/<...path>/<filename> into their structural parts.
//
// Keys arrive URL-encoded from bucket notifications (spaces as '+').
// Parse decodes them once so every downstream consumer sees the same form.
package storagepath

import (
	"net/url"
	"path"
	"strings"

	perrors "github.com/Aman-CERP/ragingest/internal/errors"
)

// Scheme prefixes the canonical storage URI recorded in the registry.
const Scheme = "s3://"

// Path is a validated object location.
type Path struct {
	// Bucket is the object storage bucket name.
	Bucket string

	// Key is the decoded object key, exactly as stored in the bucket.
	Key string

	// Visibility is key segment 0 (e.g., "private", "public").
	Visibility string

	// Owner is key segment 1, colon-decoded. It names the owner's index table.
	Owner string

	// RelativePath is everything after the owner segment.
	RelativePath string
}

// Parse validates and splits an object key received in a notification.
// It returns a MalformedPathError (ERR_406_INVALID_PATH) when the key
// cannot be decoded or lacks visibility, owner, or file segments.
func Parse(bucket, rawKey string) (Path, error) {
	if bucket == "" {
		return Path{}, perrors.MalformedPathError(rawKey, "empty bucket")
	}

	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return Path{}, perrors.MalformedPathError(rawKey, "undecodable key")
	}

	segments := strings.SplitN(key, "/", 3)
	if len(segments) < 3 {
		return Path{}, perrors.MalformedPathError(rawKey, "expected <visibility>/<owner>/<path>")
	}

	p := Path{
		Bucket:       bucket,
		Key:          key,
		Visibility:   segments[0],
		Owner:        decodeOwner(segments[1]),
		RelativePath: segments[2],
	}

	switch {
	case p.Visibility == "":
		return Path{}, perrors.MalformedPathError(rawKey, "empty visibility segment")
	case p.Owner == "":
		return Path{}, perrors.MalformedPathError(rawKey, "empty owner segment")
	case p.RelativePath == "" || strings.HasSuffix(p.RelativePath, "/"):
		return Path{}, perrors.MalformedPathError(rawKey, "key names a folder, not an object")
	}
	for _, seg := range strings.Split(p.RelativePath, "/") {
		if seg == ".." {
			return Path{}, perrors.MalformedPathError(rawKey, "parent directory segment")
		}
	}

	return p, nil
}

// ParseURI parses a canonical storage URI (s3://bucket/key) as produced by URI.
func ParseURI(uri string) (Path, error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return Path{}, perrors.MalformedPathError(uri, "missing "+Scheme+" scheme")
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok {
		return Path{}, perrors.MalformedPathError(uri, "missing object key")
	}
	return Parse(bucket, url.QueryEscape(key))
}

// EncodeKey encodes an object key the way bucket notifications deliver it:
// each segment query-escaped, separators kept. Parse reverses it.
func EncodeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.QueryEscape(seg)
	}
	return strings.Join(segs, "/")
}

// decodeOwner turns the percent-encoded colon that identity providers put in
// owner ids back into ':'. QueryUnescape has normally done this already; keys
// that were double-encoded still carry a literal "%3A". Only the owner segment
// is decoded: file names keep their literal "%3A".
func decodeOwner(owner string) string {
	owner = strings.ReplaceAll(owner, "%3A", ":")
	return strings.ReplaceAll(owner, "%3a", ":")
}

// URI returns the canonical storage path recorded in the registry and used as
// the source column of index rows.
func (p Path) URI() string {
	return Scheme + p.Bucket + "/" + p.Key
}

// Filename returns the last segment of the key.
func (p Path) Filename() string {
	return path.Base(p.Key)
}

// DisplayName returns the name shown to the owner in notifications.
// Falls back to the full key when there is no relative path.
func (p Path) DisplayName() string {
	if p.RelativePath != "" {
		return p.RelativePath
	}
	return p.Key
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return p.URI()
}
