package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/media/ffprobe"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// FFmpegOptions configures the ffmpeg-backed Opener.
type FFmpegOptions struct {
	FFmpegBinary  string
	FFprobeBinary string
	SeekTimeout   time.Duration
	ProbeTimeout  time.Duration
	// FallbackFPS is used when the container reports no frame rate.
	FallbackFPS float64
}

// FFmpegOpener probes videos with ffprobe and decodes frames with ffmpeg.
type FFmpegOpener struct {
	opts   FFmpegOptions
	logger *slog.Logger
}

// NewFFmpegOpener constructs an Opener backed by the ffmpeg binaries.
func NewFFmpegOpener(opts FFmpegOptions, logger *slog.Logger) *FFmpegOpener {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(opts.FFprobeBinary) == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	if opts.SeekTimeout <= 0 {
		opts.SeekTimeout = 15 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 30 * time.Second
	}
	return &FFmpegOpener{opts: opts, logger: logging.NewComponentLogger(logger, "ffmpeg")}
}

// Open probes path once and returns a Source that seeks by spawning ffmpeg.
func (o *FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "frames", "open", path, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.opts.ProbeTimeout)
	defer cancel()
	started := time.Now()
	video, err := ffprobe.Inspect(probeCtx, o.opts.FFprobeBinary, path)
	switch {
	case errors.Is(err, ffprobe.ErrNoVideo):
		return nil, services.Wrap(services.ErrDecodeFailure, "frames", "probe", "no video stream in "+path, nil)
	case err != nil && errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		return nil, services.Wrap(services.ErrDecodeFailure, "frames", "probe", fmt.Sprintf("timed out after %s", o.opts.ProbeTimeout), err)
	case err != nil:
		return nil, services.Wrap(services.ErrDecodeFailure, "frames", "probe", path, err)
	}

	info := VideoInfo{Path: path, FrameCount: video.FrameCount, Width: video.Width, Height: video.Height, FPS: video.FPS, Duration: video.Duration}
	if info.FPS <= 0 {
		info.FPS = o.opts.FallbackFPS
	}

	o.logger.Debug("video probed",
		logging.String("video_path", path),
		logging.Float64("duration_seconds", info.Duration),
		logging.Float64("fps", info.FPS),
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.Duration("duration", time.Since(started)),
	)
	return &ffmpegSource{info: info, opts: o.opts, logger: o.logger}, nil
}

type ffmpegSource struct {
	info   VideoInfo
	opts   FFmpegOptions
	logger *slog.Logger
}

func (s *ffmpegSource) Info() VideoInfo { return s.info }

func (s *ffmpegSource) Close() error { return nil }

func (s *ffmpegSource) Seek(ctx context.Context, offset timeline.Offset) (image.Image, error) {
	index, at, ok := ResolveFrame(s.info, offset)
	if !ok {
		return nil, fmt.Errorf("%w: offset %ss exceeds duration %.3fs", services.ErrSeekOutOfRange, offset, s.info.Duration)
	}

	// ffmpeg's input seek decodes and drops frames before the target, so the
	// first frame it emits is the first at or after offset even when frame
	// spacing is irregular. Only offsets past the last frame use the snapped
	// time of that frame.
	target := offset
	if index < timeline.FrameIndex(offset, s.info.FPS) {
		target = at
	}

	seekCtx, cancel := context.WithTimeout(ctx, s.opts.SeekTimeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", seekArg(target),
		"-i", s.info.Path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	cmd := exec.CommandContext(seekCtx, s.opts.FFmpegBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	started := time.Now()
	runErr := cmd.Run()
	if errors.Is(seekCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: ffmpeg seek to %ss timed out after %s", services.ErrDecodeFailure, target, s.opts.SeekTimeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", services.ErrDecodeFailure, runErr, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frame at %ss", services.ErrDecodeFailure, target)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: decode png: %v", services.ErrDecodeFailure, err)
	}

	s.logger.Debug("frame decoded",
		logging.String("video_path", s.info.Path),
		logging.Offset(float64(offset)),
		logging.Int("frame_index", index),
		logging.Duration("duration", time.Since(started)),
	)
	return img, nil
}

// seekArg renders target for -ss, rounded down to the microsecond so the
// rounding never lands past a frame that starts exactly at target.
func seekArg(target timeline.Offset) string {
	return strconv.FormatFloat(math.Floor(float64(target)*1e6)/1e6, 'f', 6, 64)
}
