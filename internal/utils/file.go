package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Kind classifies a source file
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	imageExts = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "bmp": {}, "tif": {}, "tiff": {}}
	videoExts = map[string]struct{}{"mp4": {}, "mov": {}, "mkv": {}, "avi": {}}
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lower-cased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported still image extension
func IsImageFile(filename string) bool {
	_, ok := imageExts[GetFileExtension(filename)]
	return ok
}

// IsVideoFile checks if a file has a supported video extension
func IsVideoFile(filename string) bool {
	_, ok := videoExts[GetFileExtension(filename)]
	return ok
}

// Classify returns the media kind of a file, or false if it is not supported
func Classify(filename string) (Kind, bool) {
	switch {
	case IsImageFile(filename):
		return KindImage, true
	case IsVideoFile(filename):
		return KindVideo, true
	default:
		return "", false
	}
}

// ListMediaFiles returns input itself when it is a file, or every supported file below it in
// lexical order. Hidden directories are skipped.
func ListMediaFiles(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if _, ok := Classify(input); !ok {
			return nil, fmt.Errorf("unsupported file type: %s", input)
		}
		return []string{input}, nil
	}

	var files []string
	err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != input && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := Classify(path); ok {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// OutputPath names the output for src as <stem>_<size>x<size>.<ext> inside outputDir
func OutputPath(outputDir, src string, size int, ext string) string {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, fmt.Sprintf("%s_%dx%d.%s", stem, size, size, strings.ToLower(ext)))
}

// AlreadyProcessed reports whether dst exists and is not older than src
func AlreadyProcessed(src, dst string) bool {
	dstInfo, err := os.Stat(dst)
	if err != nil || dstInfo.IsDir() {
		return false
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	return !dstInfo.ModTime().Before(srcInfo.ModTime())
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// FileSize returns the size of a file, or 0 if it cannot be read
func FileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
