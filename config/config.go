package config

import (
	"errors"
	"time"
)

// LoopPolicy selects what an animation does after its last frame.
type LoopPolicy string

const (
	LoopForever LoopPolicy = "forever"
	LoopOnce    LoopPolicy = "once"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Frame cache.
	CacheCapacityBytes int64 `yaml:"cache_capacity_bytes"`

	// Worker pool controls.
	WorkerCount   int           `yaml:"worker_count"` // default: runtime.NumCPU()
	QueueSize     int           `yaml:"queue_size"`   // max queued decode jobs
	DecodeTimeout time.Duration `yaml:"decode_timeout"`

	// Edit history.
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
	CoalesceMaxOps int           `yaml:"coalesce_max_ops"` // 0 = no count limit
	HistoryLimit   int           `yaml:"history_limit"`    // 0 = unbounded

	// Vector sources without a resolution hint are rasterized at this size.
	VectorDefaultWidth  int `yaml:"vector_default_width"`
	VectorDefaultHeight int `yaml:"vector_default_height"`

	// Animation.
	LoopPolicy        LoopPolicy    `yaml:"loop_policy"`
	MinFrameDelay     time.Duration `yaml:"min_frame_delay"`
	DefaultFrameDelay time.Duration `yaml:"default_frame_delay"`

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size"`      // default 32 KiB

	// libvips fallback decoder.
	Vips VipsConfig `yaml:"vips"`

	// Coordinator.
	EventBuffer    int `yaml:"event_buffer"`
	DefaultQuality int `yaml:"default_quality"` // JPEG export, 1-100

	// Logging / transport.
	LogLevel  string `yaml:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `yaml:"log_format"` // "json" or "console"
	HTTPAddr  string `yaml:"http_addr"`
}

// VipsConfig configures the optional libvips backend.
type VipsConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxCacheSize int  `yaml:"max_cache_size"`
	ReportLeaks  bool `yaml:"report_leaks"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		CacheCapacityBytes:  512 << 20,
		WorkerCount:         0, // resolved at runtime to NumCPU
		QueueSize:           64,
		DecodeTimeout:       30 * time.Second,
		CoalesceWindow:      500 * time.Millisecond,
		HistoryLimit:        64,
		VectorDefaultWidth:  1024,
		VectorDefaultHeight: 1024,
		LoopPolicy:          LoopForever,
		MinFrameDelay:       10 * time.Millisecond,
		DefaultFrameDelay:   100 * time.Millisecond,
		MaxImageBytes:       512 << 20,
		ChunkSize:           32 * 1024,
		EventBuffer:         16,
		DefaultQuality:      85,
		LogLevel:            "info",
		LogFormat:           "json",
		HTTPAddr:            ":8080",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.CacheCapacityBytes <= 0 {
		return errors.New("config: CacheCapacityBytes must be positive")
	}
	if c.WorkerCount < 0 {
		return errors.New("config: WorkerCount must not be negative")
	}
	if c.QueueSize <= 0 {
		return errors.New("config: QueueSize must be positive")
	}
	if c.CoalesceWindow < 0 || c.CoalesceMaxOps < 0 {
		return errors.New("config: coalescing thresholds must not be negative")
	}
	if c.HistoryLimit < 0 {
		return errors.New("config: HistoryLimit must not be negative")
	}
	if c.VectorDefaultWidth <= 0 || c.VectorDefaultHeight <= 0 {
		return errors.New("config: vector default resolution must be positive")
	}
	if c.LoopPolicy != LoopForever && c.LoopPolicy != LoopOnce {
		return errors.New(`config: LoopPolicy must be "forever" or "once"`)
	}
	if c.DefaultFrameDelay <= 0 {
		return errors.New("config: DefaultFrameDelay must be positive")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.EventBuffer < 0 {
		return errors.New("config: EventBuffer must not be negative")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	return nil
}
