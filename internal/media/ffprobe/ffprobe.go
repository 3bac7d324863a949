package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideo reports a container without a video stream.
var ErrNoVideo = errors.New("no video stream")

// Video summarizes the first video stream of a recording.
type Video struct {
	Codec  string
	Width  int
	Height int
	// FPS is the average frame rate, or r_frame_rate when the average is
	// unreported. Zero means unknown.
	FPS float64
	// Duration in seconds from the container, else from the stream. Zero
	// means unknown.
	Duration   float64
	FrameCount int
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NBFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

var showEntries = "stream=codec_name,codec_type,width,height,avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration"

// Inspect runs ffprobe on path and summarizes its video stream.
func Inspect(ctx context.Context, binary, path string) (Video, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Video{}, errors.New("ffprobe inspect: empty path")
	}
	args := []string{"-v", "error", "-hide_banner", "-select_streams", "v:0", "-show_entries", showEntries, "-of", "json", "--", path}
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Video{}, fmt.Errorf("ffprobe inspect: %w", ctxErr)
		}
		return Video{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return Parse(output)
}

// Parse summarizes raw ffprobe JSON. Unparseable numbers read as zero.
func Parse(data []byte) (Video, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Video{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	for _, s := range out.Streams {
		if s.CodecType != "" && !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		v := Video{Codec: s.CodecName, Width: s.Width, Height: s.Height}
		v.FPS = rate(s.AvgFrameRate)
		if v.FPS == 0 {
			v.FPS = rate(s.RFrameRate)
		}
		v.Duration = number(out.Format.Duration)
		if v.Duration == 0 {
			v.Duration = number(s.Duration)
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s.NBFrames)); err == nil && n > 0 {
			v.FrameCount = n
		}
		return v, nil
	}
	return Video{}, ErrNoVideo
}

func number(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// rate parses "30000/1001" or "25".
func rate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		return number(num)
	}
	d := number(den)
	if d == 0 {
		return 0
	}
	return number(num) / d
}
