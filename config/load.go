package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "RASTERPIPE_"

// Load builds a Config from defaults, an optional YAML file and RASTERPIPE_*
// environment overrides, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	var firstErr error
	record := func(key string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
	}

	record("CACHE_CAPACITY_BYTES", envInt64(lookup, "CACHE_CAPACITY_BYTES", &c.CacheCapacityBytes))
	record("WORKER_COUNT", envInt(lookup, "WORKER_COUNT", &c.WorkerCount))
	record("QUEUE_SIZE", envInt(lookup, "QUEUE_SIZE", &c.QueueSize))
	record("DECODE_TIMEOUT", envDuration(lookup, "DECODE_TIMEOUT", &c.DecodeTimeout))
	record("COALESCE_WINDOW", envDuration(lookup, "COALESCE_WINDOW", &c.CoalesceWindow))
	record("COALESCE_MAX_OPS", envInt(lookup, "COALESCE_MAX_OPS", &c.CoalesceMaxOps))
	record("HISTORY_LIMIT", envInt(lookup, "HISTORY_LIMIT", &c.HistoryLimit))
	record("VECTOR_DEFAULT_WIDTH", envInt(lookup, "VECTOR_DEFAULT_WIDTH", &c.VectorDefaultWidth))
	record("VECTOR_DEFAULT_HEIGHT", envInt(lookup, "VECTOR_DEFAULT_HEIGHT", &c.VectorDefaultHeight))
	record("MIN_FRAME_DELAY", envDuration(lookup, "MIN_FRAME_DELAY", &c.MinFrameDelay))
	record("DEFAULT_FRAME_DELAY", envDuration(lookup, "DEFAULT_FRAME_DELAY", &c.DefaultFrameDelay))
	record("MAX_IMAGE_BYTES", envInt64(lookup, "MAX_IMAGE_BYTES", &c.MaxImageBytes))
	record("CHUNK_SIZE", envInt(lookup, "CHUNK_SIZE", &c.ChunkSize))
	record("EVENT_BUFFER", envInt(lookup, "EVENT_BUFFER", &c.EventBuffer))
	record("DEFAULT_QUALITY", envInt(lookup, "DEFAULT_QUALITY", &c.DefaultQuality))
	record("VIPS_ENABLED", envBool(lookup, "VIPS_ENABLED", &c.Vips.Enabled))

	if v, ok := lookup(EnvPrefix + "LOOP_POLICY"); ok {
		c.LoopPolicy = LoopPolicy(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok {
		c.LogFormat = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "HTTP_ADDR"); ok {
		c.HTTPAddr = strings.TrimSpace(v)
	}
	return firstErr
}

func envInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func envInt64(lookup lookupFunc, key string, dst *int64) error {
	v, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func envDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func envBool(lookup lookupFunc, key string, dst *bool) error {
	v, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
