package registry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// Fingerprint hashes the owner identity, a NUL separator, and the document
// bytes. The same bytes uploaded by different owners never collide; the same
// bytes uploaded twice by one owner always do. Owner ids cannot contain NUL,
// so the owner/content boundary is unambiguous.
//
// MD5 keeps fingerprints compatible with registries populated by earlier
// deployments. It is a dedup key, not a security boundary.
func Fingerprint(owner string, content io.Reader) (string, error) {
	h := md5.New()
	_, _ = io.WriteString(h, owner)
	_, _ = h.Write([]byte{0})
	if _, err := io.Copy(h, content); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
