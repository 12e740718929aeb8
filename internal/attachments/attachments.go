// Package attachments stores user-uploaded images and hands back a URL the
// transcript can embed.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

// MaxImageBytes caps a single upload.
const MaxImageBytes = 10 << 20

var (
	ErrNotImage = errors.New("attachment is not an image")
	ErrTooLarge = errors.New("attachment exceeds size limit")
	ErrNoOwner  = errors.New("attachment owner is required")
)

// Store persists an object under key and returns its retrievable URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// ValidateImage accepts any image/* media type.
func ValidateImage(contentType string) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}
	return nil
}

// ObjectKey builds uploads/<owner>/<unix-ms>-<filename>.
func ObjectKey(owner, filename string, now time.Time) (string, error) {
	owner = cleanSegment(owner)
	if owner == "" {
		return "", ErrNoOwner
	}
	name := cleanSegment(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." {
		name = "image"
	}
	return fmt.Sprintf("uploads/%s/%d-%s", owner, now.UnixMilli(), name), nil
}

func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r < 0x20 || r == 0x7f:
			return -1
		case r == ' ' || r == '?' || r == '#' || r == '%':
			return '_'
		}
		return r
	}, s)
	return strings.Trim(s, ".")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
