package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/manavm/pixstudio/internal/security"
	"github.com/manavm/pixstudio/pkg/models"
)

// encodePNG builds a real PNG of the given size, base64-encoded.
func encodePNG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestProbe(t *testing.T) {
	encoded := encodePNG(t, 320, 200)

	w, h, err := Probe(encoded)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if w != 320 || h != 200 {
		t.Errorf("Probe() = %dx%d, want 320x200", w, h)
	}
}

func TestProbe_InvalidBase64(t *testing.T) {
	_, _, err := Probe("not base64!!!")
	var decodeErr *models.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("Probe() error = %T, want *models.DecodeError", err)
	}
}

func TestProbe_NotAnImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("plain text"))

	_, _, err := Probe(encoded)
	var decodeErr *models.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("Probe() error = %T, want *models.DecodeError", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")
	raw, err := base64.StdEncoding.DecodeString(encodePNG(t, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	encoded, mimeType, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if mimeType != "image/png" {
		t.Errorf("mime = %q, want image/png", mimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("returned encoding is not base64: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Error("LoadFile() content does not round-trip")
	}
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadFile(path)
	if !errors.Is(err, security.ErrUnsupportedImage) {
		t.Errorf("LoadFile() error = %v, want %v", err, security.ErrUnsupportedImage)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "absent.png"))
	if err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}
}

func TestSaveEncoded(t *testing.T) {
	s := NewSaver()
	path := filepath.Join(t.TempDir(), "out", "result.png")
	encoded := encodePNG(t, 1, 1)

	if err := s.SaveEncoded(encoded, path); err != nil {
		t.Fatalf("SaveEncoded() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := base64.StdEncoding.DecodeString(encoded)
	if !bytes.Equal(data, want) {
		t.Error("written file does not match the decoded payload")
	}
}

func TestSaveEncoded_RejectsTraversal(t *testing.T) {
	s := NewSaver()
	err := s.SaveEncoded(encodePNG(t, 1, 1), "../escape.png")
	if !errors.Is(err, security.ErrPathTraversal) {
		t.Errorf("SaveEncoded() error = %v, want %v", err, security.ErrPathTraversal)
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("fake video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	s := NewSaver()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := s.Download(context.Background(), server.URL, path); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("downloaded file does not match the served payload")
	}
}

func TestDownload_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewSaver()
	err := s.Download(context.Background(), server.URL, filepath.Join(t.TempDir(), "clip.mp4"))
	if err == nil {
		t.Error("Download() of a 404 should fail")
	}
}
