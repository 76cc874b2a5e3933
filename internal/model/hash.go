package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText applies NFKC normalization, lowercases, and collapses
// whitespace runs to single spaces. Hashing and containment checks both
// go through this so that formatting differences never read as tampering.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// SourceHash computes the stable content hash of a source over its
// normalized content, title, citation, and URL. Any change to those
// fields changes the hash.
func SourceHash(s Source) string {
	h := sha256.New()
	for _, field := range []string{s.Content, s.Title, s.Citation, s.URL} {
		h.Write([]byte(NormalizeText(field)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TextHash computes the stable hash of generated answer text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// ComputeBundleHash returns the tamper-evident hash over the whole record
// bundle. The bundle hash field itself is zeroed before hashing so the
// value is reproducible from a stored record.
func (r ValidationRecord) ComputeBundleHash() (string, error) {
	r.BundleHash = ""
	b, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "model: marshal record bundle")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
