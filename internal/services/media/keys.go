package media

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a client file name to a safe key segment.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		name = ""
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > 120 {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:120-len(ext)] + ext
	}
	if name == "" {
		return "video"
	}
	return name
}

// GenerateStoredKey builds "<prefix>/<unix millis>-<random hex>-<name>". The
// random token keeps same-millisecond uploads of one name apart.
func GenerateStoredKey(prefix, originalName string, now time.Time) string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return fmt.Sprintf("%s/%d-%s-%s", strings.Trim(prefix, "/"), now.UnixMilli(), hex.EncodeToString(b[:]), SanitizeName(originalName))
}

// keyBase is the last path segment of key without its extension.
func keyBase(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

func RenditionKey(prefix, storedKey, quality string) string {
	return fmt.Sprintf("%s/%s_%s.mp4", strings.Trim(prefix, "/"), keyBase(storedKey), quality)
}

func ThumbnailKey(prefix, storedKey string, offsetSeconds float64) string {
	return fmt.Sprintf("%s/%s_%ss.jpg", strings.Trim(prefix, "/"), keyBase(storedKey), strconv.FormatFloat(offsetSeconds, 'f', -1, 64))
}
