package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValueRedactsSecrets(t *testing.T) {
	if got := sanitizeValue("gcs_private_key", "abc"); got != "[REDACTED]" {
		t.Fatalf("private key not redacted: %v", got)
	}
	if got := sanitizeValue("session_id", "s-1"); !strings.HasPrefix(got.(string), "hash:") {
		t.Fatalf("session id not hashed: %v", got)
	}
	if got := sanitizeValue("file_key", "360-videos/a.mp4"); got != "360-videos/a.mp4" {
		t.Fatalf("plain value changed: %v", got)
	}
}

func TestSanitizeValueStripsSignedURLQuery(t *testing.T) {
	in := "https://storage.googleapis.com/b/k.mp4?X-Goog-Algorithm=GOOG4&X-Goog-Signature=deadbeef"
	got := sanitizeValue("url", in).(string)
	if strings.Contains(got, "deadbeef") {
		t.Fatalf("signature leaked: %s", got)
	}
	if !strings.HasPrefix(got, "https://storage.googleapis.com/b/k.mp4?") {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	l, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("discarded", "k", "v")
}
