// Package media handles encoded image bytes at the edges of the core:
// probing pixel dimensions of generated results, staging local files for
// upload, and exporting results to disk.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/manavm/pixstudio/internal/security"
	"github.com/manavm/pixstudio/pkg/models"
)

// Probe decodes the natural pixel dimensions of a base64-encoded image.
// Failures come back as *models.DecodeError so callers can degrade
// dimension metadata without treating the media itself as lost.
func Probe(encoded string) (width, height int, err error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, 0, &models.DecodeError{Err: err}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, &models.DecodeError{Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// LoadFile reads a local image for staging and returns it base64-encoded
// with its mime type.
func LoadFile(path string) (encoded, mimeType string, err error) {
	mimeType, err = security.ValidateUploadPath(path)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read image: %w", err)
	}
	if info.Size() > security.MaxUploadBytes {
		return "", "", security.ErrImageTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), mimeType, nil
}

// Saver writes results to disk and downloads URL-referenced media.
type Saver struct {
	httpClient *http.Client
}

func NewSaver() *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SaveEncoded decodes a base64 image and writes it to path.
func (s *Saver) SaveEncoded(encoded, path string) error {
	if err := security.ValidateSavePath(path); err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Download fetches a URL-referenced asset (a hosted video) to path.
func (s *Saver) Download(ctx context.Context, url, path string) error {
	if err := security.ValidateSavePath(path); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
