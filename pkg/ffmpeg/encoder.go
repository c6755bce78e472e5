package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/menta2k/memoryball/pkg/processing"
)

// EncodeOptions is the encoding policy for one output file
type EncodeOptions struct {
	Size   int
	FPS    float64
	Preset string
	CRF    int

	// AudioSource is the file whose first audio stream is muxed into the output. Empty
	// disables audio.
	AudioSource string
	// CopyAudio copies the audio stream as is; otherwise it is transcoded to AAC at 192k.
	// Copying is only correct when the frame rate was kept.
	CopyAudio bool
}

// EncodeArgs builds the arguments for an ffmpeg process reading raw RGB24 frames from stdin.
func EncodeArgs(output string, opts EncodeOptions) []string {
	args := []string{"-hide_banner", "-y", "-loglevel", "error"}

	videoInput := "0"
	if opts.AudioSource != "" {
		args = append(args, "-i", opts.AudioSource)
		videoInput = "1"
	}

	rate := formatRate(opts.FPS)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Size, opts.Size),
		"-r", rate,
		"-i", "pipe:0",
		"-map", videoInput+":v:0",
	)

	if opts.AudioSource != "" {
		args = append(args, "-map", "0:a:0")
		if opts.CopyAudio {
			args = append(args, "-c:a", "copy")
		} else {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		}
		args = append(args, "-shortest")
	} else {
		args = append(args, "-an")
	}

	return append(args,
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-r", rate,
		"-movflags", "+faststart",
		output,
	)
}

// Encoder feeds frames to a running ffmpeg process. It is not safe for concurrent use.
type Encoder struct {
	cmd    *exec.Cmd
	args   []string
	stdin  io.WriteCloser
	stderr bytes.Buffer
	size   int
	buf    []byte
	frames int
	closed bool
}

// NewEncoder starts ffmpeg writing output.
func NewEncoder(ctx context.Context, output string, opts EncodeOptions) (*Encoder, error) {
	if opts.Size <= 0 || opts.Size%2 != 0 {
		return nil, fmt.Errorf("ffmpeg: output size %d must be positive and even", opts.Size)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame rate %v", opts.FPS)
	}

	args := EncodeArgs(output, opts)
	e := &Encoder{
		cmd:  exec.CommandContext(ctx, Binary, args...),
		args: args,
		size: opts.Size,
	}
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to create stdin pipe: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to start: %w", err)
	}
	return e, nil
}

// WriteFrame sends one frame. Frames must be exactly Size×Size.
func (e *Encoder) WriteFrame(frame *image.NRGBA) error {
	if e.closed {
		return fmt.Errorf("ffmpeg: write after close")
	}
	if b := frame.Bounds(); b.Dx() != e.size || b.Dy() != e.size {
		return fmt.Errorf("ffmpeg: frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), e.size, e.size)
	}
	e.buf = processing.PackRGB24(frame, e.buf)
	if _, err := e.stdin.Write(e.buf); err != nil {
		// The process most likely died; its exit status explains why.
		e.closed = true
		_ = e.stdin.Close()
		if werr := wrap(e.args, &e.stderr, e.cmd.Wait()); werr != nil {
			return werr
		}
		return fmt.Errorf("ffmpeg: writing frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// Frames returns the number of frames written so far
func (e *Encoder) Frames() int {
	return e.frames
}

// Close flushes stdin and waits for ffmpeg to finish the file.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.stdin.Close(); err != nil {
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
		return fmt.Errorf("ffmpeg: closing stdin: %w", err)
	}
	return wrap(e.args, &e.stderr, e.cmd.Wait())
}

// Abort kills ffmpeg without finishing the file.
func (e *Encoder) Abort() {
	if e.closed {
		return
	}
	e.closed = true
	_ = e.stdin.Close()
	_ = e.cmd.Process.Kill()
	_ = e.cmd.Wait()
}
