package avatars

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
	removed []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(_ context.Context, key, contentType string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Remove(_ context.Context, key string) error {
	m.removed = append(m.removed, key)
	delete(m.objects, key)
	return nil
}

// pngHeader is the 8-byte PNG signature followed by an IHDR chunk start.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestUploadStoresImageAndRemovesPrevious(t *testing.T) {
	store := newMemObjects()
	u := NewUploader(store, "https://cdn.example.com/avatars/")
	u.now = func() time.Time { return time.Unix(1700000000, 0) }

	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 2048)...)
	prev := &model.Avatar{Key: "avatars/u-1/old.png"}
	got, err := u.Upload(context.Background(), "u-1", bytes.NewReader(body), int64(len(body)), prev)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(got.Key, "avatars/u-1/1700000000-") || !strings.HasSuffix(got.Key, ".png") {
		t.Fatalf("unexpected key %q", got.Key)
	}
	if got.URL != "https://cdn.example.com/avatars/"+got.Key {
		t.Fatalf("unexpected url %q", got.URL)
	}
	if !bytes.Equal(store.objects[got.Key], body) || store.types[got.Key] != "image/png" {
		t.Fatal("stored object does not match upload")
	}
	if len(store.removed) != 1 || store.removed[0] != prev.Key {
		t.Fatalf("previous avatar not removed: %v", store.removed)
	}
}

func TestUploadRejects(t *testing.T) {
	u := NewUploader(newMemObjects(), "")
	ctx := context.Background()
	if _, err := u.Upload(ctx, "u-1", strings.NewReader("%PDF-1.4 not an image"), 20, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := u.Upload(ctx, "u-1", bytes.NewReader(pngHeader), MaxSize+1, nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	var nilUploader *Uploader
	if _, err := nilUploader.Upload(ctx, "u-1", bytes.NewReader(pngHeader), 16, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
