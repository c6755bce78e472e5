package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		ok   bool
	}{
		{"a.JPG", KindImage, true},
		{"b.tif", KindImage, true},
		{"c.webp", KindImage, true},
		{"d.MOV", KindVideo, true},
		{"e.mkv", KindVideo, true},
		{"f.gif", "", false},
		{"noext", "", false},
	}

	for _, tt := range tests {
		kind, ok := Classify(tt.name)
		assert.Equal(t, tt.kind, kind, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestListMediaFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.png"))
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "sub", "clip.mp4"))
	touch(t, filepath.Join(dir, ".cache", "hidden.jpg"))

	files, err := ListMediaFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "clip.mp4"),
	}, files)

	single, err := ListMediaFiles(filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = ListMediaFiles(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)

	_, err = ListMediaFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "holiday_1080x1080.mp4"), OutputPath("out", "/photos/holiday.JPG", 1080, "mp4"))
	assert.Equal(t, filepath.Join("out", "clip.v2_480x480.webp"), OutputPath("out", "clip.v2.mov", 480, "WEBP"))
}

func TestAlreadyProcessed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "a_1080x1080.mp4")
	touch(t, src)

	assert.False(t, AlreadyProcessed(src, dst), "missing output")

	touch(t, dst)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dst, old, old))
	assert.False(t, AlreadyProcessed(src, dst), "stale output")

	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(dst, newer, newer))
	assert.True(t, AlreadyProcessed(src, dst))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KiB", FormatFileSize(1536))
	assert.Equal(t, "0 B", FormatFileSize(-5))
}
