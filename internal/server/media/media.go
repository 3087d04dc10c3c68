// Package media resolves post media references for platform adapters.
//
// A reference is either an object in the media bucket ("s3://bucket/key" or
// a bare key) or an absolute http(s) URL hosted elsewhere. Adapters that
// let the platform fetch media ask for a URL; adapters that upload bytes
// themselves ask for the object.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxObjectSize caps how much an adapter may pull into memory.
const MaxObjectSize = 512 << 20

// Object is media content loaded for upload.
type Object struct {
	Data        []byte
	ContentType string
	Name        string
}

// Size is the payload length in bytes.
func (o *Object) Size() int64 { return int64(len(o.Data)) }

// Source is what adapters depend on.
type Source interface {
	// URL returns a URL the destination platform can fetch without
	// credentials.
	URL(ctx context.Context, ref string) (string, error)
	// Fetch loads the referenced media into memory.
	Fetch(ctx context.Context, ref string) (*Object, error)
}

// IsRemote reports whether ref is an absolute http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// NewStorageKey returns a fresh, date-partitioned object key for userID.
func NewStorageKey(userID, ext string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("users/%s/%d/%02d/%02d/%v%s", userID, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

// videoTypes are missing from the builtin mime table on minimal systems.
var videoTypes = map[string]string{
	".mp4": "video/mp4",
	".m4v": "video/mp4",
	".mov": "video/quicktime",
}

// ContentTypeFor guesses a MIME type from a key or URL path.
func ContentTypeFor(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// fetchRemote downloads a third-party hosted file.
func fetchRemote(ctx context.Context, client *http.Client, url string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("fetch media: larger than %d bytes", MaxObjectSize)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = ContentTypeFor(url)
	}
	return &Object{Data: data, ContentType: ct, Name: path.Base(req.URL.Path)}, nil
}
