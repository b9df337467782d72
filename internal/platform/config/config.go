package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port      string `env:"PORT"       envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	FrameCount   int `env:"FRAME_COUNT"   envDefault:"9"`
	FrameWidth   int `env:"FRAME_WIDTH"   envDefault:"320"`
	FrameQuality int `env:"FRAME_QUALITY" envDefault:"5"`

	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT"    envDefault:"30s"`
	FetchUserAgent string        `env:"FETCH_USER_AGENT" envDefault:"hls-thumbnailer/1.0"`

	RetainJobs int `env:"RETAIN_JOBS" envDefault:"16"`

	FFmpegPath  string `env:"FFMPEG_PATH"  envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	WorkDir     string `env:"WORK_DIR"`

	// OTLPEndpoint is the OTLP/HTTP traces URL; empty disables export.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Parse builds a Config from the current environment, applying defaults for
// unset variables.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
