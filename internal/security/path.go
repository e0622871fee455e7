package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal    = fmt.Errorf("path traversal detected")
	ErrReservedName     = fmt.Errorf("reserved filename not allowed")
	ErrUnsupportedImage = fmt.Errorf("unsupported image type")
	ErrImageTooLarge    = fmt.Errorf("image file too large")

	// MaxUploadBytes caps staged uploads; anything larger would never
	// survive a request body anyway.
	MaxUploadBytes int64 = 20 << 20

	uploadExtensions = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".webp": "image/webp",
		".gif":  "image/gif",
	}

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateUploadPath checks a path the user wants to stage for combine or
// editing and returns its mime type.
func ValidateUploadPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := uploadExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, ext)
	}
	return mime, nil
}

// ValidateSavePath rejects export destinations that escape the working
// directory or collide with reserved names.
func ValidateSavePath(path string) error {
	cleaned := filepath.Clean(path)

	if !filepath.IsAbs(path) && (strings.HasPrefix(cleaned, "..") || strings.Contains(path, "..")) {
		return ErrPathTraversal
	}

	base := filepath.Base(cleaned)
	nameWithoutExt := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))

	if windowsReservedNames[nameWithoutExt] {
		return ErrReservedName
	}

	if strings.HasPrefix(base, "-") {
		return fmt.Errorf("filename cannot start with hyphen")
	}

	return nil
}

// SanitizeFilename makes an arbitrary string safe to use as a filename.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	nameWithoutExt := strings.TrimSuffix(strings.ToLower(sanitized), filepath.Ext(sanitized))
	if windowsReservedNames[nameWithoutExt] {
		sanitized = sanitized + "_"
	}

	if sanitized == "" {
		sanitized = "file"
	}

	return sanitized
}
