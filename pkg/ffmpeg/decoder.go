package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/menta2k/memoryball/pkg/processing"
)

// DecodeArgs builds the arguments that stream a source as raw RGB24 frames on stdout. fps > 0
// resamples the stream to that rate.
func DecodeArgs(input string, fps float64) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-map", "0:v:0",
	}
	if fps > 0 {
		args = append(args, "-r", formatRate(fps))
	}
	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
}

// Decoder reads the frames of one video in display order. It is not safe for concurrent use.
type Decoder struct {
	cmd    *exec.Cmd
	args   []string
	stdout io.ReadCloser
	stderr bytes.Buffer
	width  int
	height int
	buf    []byte
	done   bool
}

// NewDecoder starts ffmpeg decoding input. width and height are the source dimensions as
// reported by Probe.
func NewDecoder(ctx context.Context, input string, width, height int, fps float64) (*Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %dx%d", width, height)
	}
	args := DecodeArgs(input, fps)
	d := &Decoder{
		cmd:    exec.CommandContext(ctx, Binary, args...),
		args:   args,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
	d.cmd.Stderr = &d.stderr

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to create stdout pipe: %w", err)
	}
	d.stdout = stdout

	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to start: %w", err)
	}
	return d, nil
}

// Size returns the frame dimensions
func (d *Decoder) Size() (int, int) {
	return d.width, d.height
}

// ReadFrame returns the next frame, or io.EOF once the stream is exhausted.
func (d *Decoder) ReadFrame() (*image.NRGBA, error) {
	if d.done {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(d.stdout, d.buf); err != nil {
		if errors.Is(err, io.EOF) {
			d.done = true
			if werr := d.wait(); werr != nil {
				return nil, werr
			}
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			d.done = true
			if werr := d.wait(); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("ffmpeg: truncated frame in %s", d.args[len(d.args)-1])
		}
		return nil, err
	}
	return processing.FromRGB24(d.buf, d.width, d.height)
}

// Close stops the decoder, killing ffmpeg if frames are still pending.
func (d *Decoder) Close() error {
	if d.cmd.ProcessState != nil {
		return nil
	}
	if !d.done {
		d.done = true
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
		return nil
	}
	return d.wait()
}

func (d *Decoder) wait() error {
	if d.cmd.ProcessState != nil {
		return nil
	}
	return wrap(d.args, &d.stderr, d.cmd.Wait())
}
