package avatars_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/archivebroni/internal/avatars"
	"go.uber.org/zap"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		size        int64
		want        error
	}{
		{"png", "image/png", 1024, nil},
		{"jpeg with params", "image/jpeg; charset=binary", 2048, nil},
		{"exactly max", "image/webp", avatars.MaxSize, nil},
		{"too large", "image/png", avatars.MaxSize + 1, avatars.ErrTooLarge},
		{"empty", "image/png", 0, avatars.ErrEmpty},
		{"pdf", "application/pdf", 1024, avatars.ErrNotImage},
		{"garbage type", ";;", 1024, avatars.ErrNotImage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := avatars.Validate(tc.contentType, tc.size); !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	k1 := avatars.ObjectKey("id-1", "Me.PNG", "image/png")
	k2 := avatars.ObjectKey("id-1", "Me.PNG", "image/png")
	if !strings.HasPrefix(k1, "id-1/") || !strings.HasSuffix(k1, ".png") {
		t.Errorf("key = %q", k1)
	}
	if k1 == k2 {
		t.Error("expected unique keys per upload")
	}
	if k := avatars.ObjectKey("id-1", "blob", "application/x-unknown"); !strings.HasSuffix(k, ".img") {
		t.Errorf("fallback key = %q", k)
	}
}

func TestPublicURL(t *testing.T) {
	s, err := avatars.NewMinioStore(avatars.Config{
		Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "avatars",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMinioStore: %v", err)
	}
	if got := s.PublicURL("id-1/x.png"); got != "http://localhost:9000/avatars/id-1/x.png" {
		t.Errorf("PublicURL = %q", got)
	}

	s, _ = avatars.NewMinioStore(avatars.Config{
		Endpoint: "localhost:9000", Bucket: "avatars", PublicBaseURL: "https://cdn.example.com/",
	}, zap.NewNop())
	if got := s.PublicURL("k"); got != "https://cdn.example.com/k" {
		t.Errorf("PublicURL = %q", got)
	}
}
