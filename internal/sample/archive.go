// Package sample decodes sample payloads attached to MISP attributes.
//
// MISP stores malware-sample attributes as base64 encoded zip archives protected
// with the well-known password "infected"; attachments are plain base64.
package sample

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yeka/zip"
)

// DefaultZipPassword is the password MISP uses for malware-sample archives.
const DefaultZipPassword = "infected"

// Common errors.
var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrNoEntry      = errors.New("archive has no entries")
)

// DecodeBase64 decodes a base64 attribute payload. Standard and URL-safe
// alphabets are accepted, padded or not.
func DecodeBase64(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, ErrEmptyPayload
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return decoded, nil
		}
	}

	return nil, fmt.Errorf("invalid base64 payload")
}

// Unzip returns the content of the first entry of a (possibly encrypted) zip
// archive. Archives produced by MISP hold exactly one sample.
func Unzip(archive []byte, password string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if len(reader.File) == 0 {
		return nil, ErrNoEntry
	}

	entry := reader.File[0]
	if entry.IsEncrypted() {
		entry.SetPassword(password)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %q: %w", entry.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %q: %w", entry.Name, err)
	}

	return data, nil
}

// SHA1 returns the lowercase hex sha1 digest of data.
func SHA1(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// HashType reports the digest algorithm of a hex hash by its length.
// It returns an empty string for anything that is not md5, sha1 or sha256.
func HashType(hash string) string {
	if _, err := hex.DecodeString(hash); err != nil {
		return ""
	}
	switch len(hash) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	default:
		return ""
	}
}
