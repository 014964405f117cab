package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrOutsideRoot is returned when a request path escapes its root directory
var ErrOutsideRoot = errors.New("path escapes root directory")

// imageExts are the extensions the analyzer can inspect
var imageExts = []string{"jpg", "jpeg", "png", "gif", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	ext := GetFileExtension(filename)
	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// GenerateOutputFilename builds the name of a rendered derivative. The target
// size is part of the name so renditions of one source don't collide; zero
// sides are written as "auto". inputFile may be an http(s) URL, in which
// case the last path segment names the output.
func GenerateOutputFilename(inputFile, outputDir, prefix, suffix, format string, width, height int) string {
	baseName := filepath.Base(inputFile)
	if IsURL(inputFile) {
		if u, err := url.Parse(inputFile); err == nil {
			baseName = path.Base(u.Path)
		}
	}
	nameWithoutExt := strings.TrimSuffix(baseName, path.Ext(baseName))

	if format == "" {
		format = GetFileExtension(baseName)
		if format == "" {
			format = "jpg"
		}
	}

	outputName := SanitizeFilename(fmt.Sprintf("%s%s%s_%sx%s.%s", prefix, nameWithoutExt, suffix, side(width), side(height), format))
	return filepath.Join(outputDir, outputName)
}

// IsURL reports whether source names an http(s) resource
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func side(v int) string {
	if v <= 0 {
		return "auto"
	}
	return fmt.Sprint(v)
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// SafeJoin resolves the slash-separated request path rel below root. Paths
// that would leave root return ErrOutsideRoot.
func SafeJoin(root, rel string) (string, error) {
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return filepath.Join(root, rel), nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// SanitizeFilename replaces characters that are unsafe in file names with
// underscores and trims surrounding spaces and dots.
func SanitizeFilename(filename string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, filename)
	return strings.Trim(clean, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
