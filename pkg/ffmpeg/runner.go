// Package ffmpeg wraps the ffmpeg and ffprobe binaries: probing sources, decoding video into raw
// RGB24 frames and encoding fixed-size RGB24 frames into H.264 MP4 files.
package ffmpeg

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// Binary is the ffmpeg executable looked up in PATH.
	Binary = "ffmpeg"
	// ProbeBinary is the ffprobe executable looked up in PATH.
	ProbeBinary = "ffprobe"
)

// Available reports whether both ffmpeg and ffprobe can be found.
func Available() error {
	for _, bin := range []string{Binary, ProbeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// Error represents an ffmpeg execution error with context.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return Binary + " " + strings.Join(e.Args, " ")
}

func wrap(args []string, stderr *bytes.Buffer, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Args: args, Stderr: stderr.String(), Err: err}
}

// formatRate renders a frame rate without trailing zeros ("30", "29.97").
func formatRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
