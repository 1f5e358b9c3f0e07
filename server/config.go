package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/mlqueue/pkg/capture"
)

// Config is loaded from a JSON file
type Config struct {
	Listen          string        `json:"listen"`          // eg ":8080"
	DB              string        `json:"db"`              // Path to the config DB (sqlite)
	InsertRateLimit int           `json:"insertRateLimit"` // Max inserts per second, per IP. Zero means unlimited.
	MaxFrameBytes   int64         `json:"maxFrameBytes"`   // Largest JPEG accepted by the insert API
	Capture         CaptureConfig `json:"capture"`
}

// CaptureConfig is shared by all cameras. Zero values take the defaults from capture.DefaultOptions.
type CaptureConfig struct {
	FFmpeg         string `json:"ffmpeg"`
	SnapshotDir    string `json:"snapshotDir"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FPS            int    `json:"fps"`
	LogLevel       string `json:"logLevel"`
	Format         string `json:"format"`
	Quality        int    `json:"quality"`
	LoopDelayMS    int    `json:"loopDelayMS"`
	RestartDelayMS int    `json:"restartDelayMS"`
}

func DefaultConfig() Config {
	return Config{
		Listen:          ":8080",
		DB:              "mlqueue.sqlite",
		InsertRateLimit: 100,
		MaxFrameBytes:   16 * 1024 * 1024,
	}
}

// LoadConfig reads a JSON config file. Missing fields keep the values of DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	cfgB, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfgB, &cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
	}
	return &cfg, nil
}

// Options converts to capture options
func (c *CaptureConfig) Options() capture.Options {
	opt := capture.DefaultOptions()
	setString := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	setInt := func(dst *int, src int) {
		if src != 0 {
			*dst = src
		}
	}
	setString(&opt.FFmpeg, c.FFmpeg)
	setString(&opt.SnapshotDir, c.SnapshotDir)
	setInt(&opt.Width, c.Width)
	setInt(&opt.Height, c.Height)
	setInt(&opt.FPS, c.FPS)
	setString(&opt.LogLevel, c.LogLevel)
	setString(&opt.Format, c.Format)
	setInt(&opt.Quality, c.Quality)
	if c.LoopDelayMS != 0 {
		opt.LoopDelay = time.Duration(c.LoopDelayMS) * time.Millisecond
	}
	if c.RestartDelayMS != 0 {
		opt.RestartDelay = time.Duration(c.RestartDelayMS) * time.Millisecond
	}
	return opt
}
