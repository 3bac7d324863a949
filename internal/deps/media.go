package deps

import (
	"context"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
)

// MediaRequirements lists the binaries frame extraction relies on.
func MediaRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Media.FFmpegBinary,
			Description: "Required for frame extraction",
			VersionArg:  "-version",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Media.FFprobeBinary,
			Description: "Required for video inspection",
			VersionArg:  "-version",
		},
	}
}

// CheckMedia evaluates MediaRequirements for cfg.
func CheckMedia(ctx context.Context, cfg *config.Config) []Status {
	return CheckBinaries(ctx, MediaRequirements(cfg))
}
