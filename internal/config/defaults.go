package config

const (
	defaultLibraryDir         = "~/music"
	defaultCacheDir           = "~/.local/share/phono/cache"
	defaultLogDir             = "~/.local/share/phono/logs"
	defaultAPIBind            = "127.0.0.1:7539"
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultWorkers            = 2
	defaultMinCacheFreeGiB    = 1
	defaultAudioCodec         = "aac"
	defaultAudioBitrate       = "192k"
	defaultSegmentSeconds     = 10
	defaultTranscodeTimeout   = 1800
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			Workers:            defaultWorkers,
			MinCacheFreeGiB:    defaultMinCacheFreeGiB,
		},
		Transcode: Transcode{
			AudioCodec:     defaultAudioCodec,
			AudioBitrate:   defaultAudioBitrate,
			SegmentSeconds: defaultSegmentSeconds,
			Timeout:        defaultTranscodeTimeout,
		},
		Artwork: Artwork{
			Enabled:        true,
			ThumbnailSizes: []int{128, 512},
		},
		Notifications: Notifications{
			NtfyRequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
