package media

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/yungbote/video-gateway/internal/platform/apierr"
)

var DefaultAllowedTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/webm",
	"video/mpeg",
	"video/ogg",
	"video/3gpp",
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(ct)
}

func (c *core) validateUpload(contentType string, size int64, sizeKnown bool) error {
	ct := normalizeContentType(contentType)
	allowed := false
	for _, t := range c.cfg.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), ct) {
			allowed = true
			break
		}
	}
	if !allowed {
		return apierr.Validation("invalid_file_type", fmt.Errorf("File type %q is not allowed; only video uploads are accepted", contentType))
	}
	if sizeKnown && size <= 0 {
		return apierr.Validation("invalid_file_size", fmt.Errorf("File size must be positive"))
	}
	if size > c.cfg.MaxUploadBytes {
		return apierr.Validation("file_too_large", fmt.Errorf("File size %d exceeds the maximum of %d bytes", size, c.cfg.MaxUploadBytes))
	}
	return nil
}

// limitedReader fails once more than max bytes are read, which aborts the store
// write before it commits.
type limitedReader struct {
	r   io.Reader
	max int64
	n   int64
}

var errBodyTooLarge = apierr.Validation("file_too_large", fmt.Errorf("Upload exceeds the maximum allowed size"))

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, errBodyTooLarge
	}
	return n, err
}
