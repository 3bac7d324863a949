package config

const (
	defaultDataDir             = "./data"
	defaultRosterCSV           = "./task_assignments.csv"
	defaultOutputDir           = "./output"
	defaultLogDir              = "~/.local/share/cua-annotate/logs"
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultSeekTimeoutSeconds  = 15
	defaultProbeTimeoutSeconds = 30
	defaultVideoGlob           = "*.mp4"
	defaultExcludeDir          = "video_clips"
	defaultCacheEntries        = 256
	defaultCapturePolicy       = "start"
	defaultFallbackFPS         = 30
	defaultOverlayRadius       = 18
	defaultOverlayLineWidth    = 3
	defaultOverlayColor        = "#ff3030"
	defaultExportWorkers       = 4
	defaultArchiveName         = "export.zip"
	defaultCombinedName        = "all_tasks.json"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			RosterCSV: defaultRosterCSV,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Media: Media{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			SeekTimeoutSeconds:  defaultSeekTimeoutSeconds,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			VideoGlob:           defaultVideoGlob,
			ExcludeDir:          defaultExcludeDir,
		},
		Frames: Frames{
			CacheEntries:  defaultCacheEntries,
			CapturePolicy: defaultCapturePolicy,
			FallbackFPS:   defaultFallbackFPS,
		},
		Overlay: Overlay{
			Enabled:   true,
			Radius:    defaultOverlayRadius,
			LineWidth: defaultOverlayLineWidth,
			Color:     defaultOverlayColor,
		},
		Export: Export{
			Workers:      defaultExportWorkers,
			ArchiveName:  defaultArchiveName,
			CombinedName: defaultCombinedName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,

			RetentionDays: defaultLogRetentionDays,
		},
	}
}
