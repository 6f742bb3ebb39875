package internal

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	DefaultImageExtensions = []string{".JPG", ".jpeg", ".PNG", ".jpg", ".gif", ".png", ".JPEG"}
	DefaultVideoExtensions = []string{".MP4", ".avi", ".mp4", ".3gp"}
	DefaultOtherExtensions = []string{".json", ".MP", ".html"}
)

type MediaKind string

const (
	KindImage   MediaKind = "image"
	KindVideo   MediaKind = "video"
	KindOther   MediaKind = "other"
	KindUnknown MediaKind = "unknown"
)

// extensionOf returns the final suffix of name including the dot. Dotfiles
// without a further suffix and names ending in a dot have no extension.
func extensionOf(name string) string {
	trimmed := strings.TrimLeft(name, ".")
	ext := filepath.Ext(trimmed)
	if ext == "." {
		return ""
	}
	return ext
}

func containsExt(list []string, ext string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

// KindOf classifies a file name by its extension. Matching is case-sensitive.
func (c *Config) KindOf(name string) MediaKind {
	ext := extensionOf(name)
	switch {
	case containsExt(c.ImageExt, ext):
		return KindImage
	case containsExt(c.VideoExt, ext):
		return KindVideo
	case containsExt(c.OtherExt, ext):
		return KindOther
	}
	return KindUnknown
}

// DetectKind sniffs the file content and falls back to the extension when
// the content is neither an image nor a video.
func (c *Config) DetectKind(path string) MediaKind {
	if mt, err := mimetype.DetectFile(path); err == nil {
		switch {
		case strings.HasPrefix(mt.String(), "image/"):
			return KindImage
		case strings.HasPrefix(mt.String(), "video/"):
			return KindVideo
		}
	}
	return c.KindOf(filepath.Base(path))
}

// inTrash reports whether any directory segment of path equals trash.
func inTrash(path, trash string) bool {
	if trash == "" {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == trash {
			return true
		}
	}
	return false
}

// ScanMediaFiles walks inputDir recursively and returns image files in
// lexical order.
func ScanMediaFiles(inputDir string, cfg *Config) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if cfg.KindOf(d.Name()) == KindImage {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}
	return files, nil
}

// ListFolder returns the direct entries of dir sorted by name, as
// os.ReadDir does.
func ListFolder(dir string) ([]os.DirEntry, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, newNotFoundError(dir, fmt.Errorf("folder does not exist or is not a directory: %s", dir))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return entries, nil
}
