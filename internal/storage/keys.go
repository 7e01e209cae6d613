package storage

import (
	"crypto/rand"
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID drawn from crypto/rand.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// SourceKey is where an ingested file for user is stored.
// The submitted extension is kept so the merge process can sniff it.
func SourceKey(user int64, name string) string {
	return fmt.Sprintf("%d/%s%s", user, NewID(), cleanExt(name))
}

// OutputKey is where a merged result for user is stored.
func OutputKey(user int64) string {
	return fmt.Sprintf("%d/out/%s.mkv", user, NewID())
}

// UserPrefix is the common prefix of everything stored for user.
func UserPrefix(user int64) string {
	return fmt.Sprintf("%d/", user)
}

func cleanExt(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// Locator renders bucket and key as an s3:// URI.
func Locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
