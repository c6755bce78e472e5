package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// ProbeResult contains the source properties the video pipeline needs.
type ProbeResult struct {
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	VideoCodec string
	// Rotation is the display rotation in degrees from the stream metadata.
	Rotation int

	AudioCodec   string
	AudioStreams int
	VideoStreams int
}

// DisplaySize returns the frame size after ffmpeg applies the display rotation, which is the
// size of decoded frames.
func (r *ProbeResult) DisplaySize() (int, int) {
	if r.Rotation%180 != 0 {
		return r.Height, r.Width
	}
	return r.Width, r.Height
}

// HasAudio reports whether the source carries at least one audio stream.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioStreams > 0
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns its metadata.
func Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, ProbeBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, stderr.String())
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(raw []byte) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	result := &ProbeResult{}
	if output.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			result.VideoStreams++
			if result.VideoCodec == "" {
				result.Width = stream.Width
				result.Height = stream.Height
				result.VideoCodec = stream.CodecName
				result.FPS = parseFrameRate(stream.AvgFrameRate)
				if result.FPS == 0 {
					result.FPS = parseFrameRate(stream.RFrameRate)
				}
				if stream.Tags.Rotate != "" {
					result.Rotation, _ = strconv.Atoi(stream.Tags.Rotate)
				}
				for _, sd := range stream.SideDataList {
					if sd.Rotation != 0 {
						result.Rotation = int(math.Round(sd.Rotation))
					}
				}
			}
		case "audio":
			result.AudioStreams++
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}

	if result.VideoStreams == 0 {
		return nil, fmt.Errorf("ffprobe: no video stream")
	}
	return result, nil
}

// parseFrameRate parses ffprobe frame rate format (e.g., "30/1" or "30000/1001").
func parseFrameRate(rate string) float64 {
	var num, den int
	_, err := fmt.Sscanf(rate, "%d/%d", &num, &den)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
