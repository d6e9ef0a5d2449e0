// Package config loads the JSON-driven operator tuning configuration for
// the merge pipeline: thresholds and buffer limits that are safe to
// override per run without a rebuild.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxConfigBytes bounds how large a tuning file we will read, to avoid
// accidentally loading an unrelated large file passed by mistake.
const maxConfigBytes = 1 << 20 // 1 MiB

// TuningConfig holds operator-tunable parameters. Fields are pointers so a
// partial JSON document only overrides what it mentions; Merge with
// Default() before use.
type TuningConfig struct {
	SpikeThresholdRawADC      *float64 `json:"spike_threshold_raw_adc,omitempty"`
	SpikeThresholdCalibratedMV *float64 `json:"spike_threshold_calibrated_mv,omitempty"`
	SkewBufferSoftLimit       *int     `json:"skew_buffer_soft_limit,omitempty"`
	SweepChunkFrames          *int     `json:"sweep_chunk_frames,omitempty"`
	IndexCacheEnabled         *bool    `json:"index_cache_enabled,omitempty"`
}

// Default returns the built-in defaults: the calibrated and raw spike
// thresholds and the merger's soft overflow limit.
func Default() TuningConfig {
	return TuningConfig{
		SpikeThresholdRawADC:       ptrFloat64(360.0),
		SpikeThresholdCalibratedMV: ptrFloat64(16.0),
		SkewBufferSoftLimit:        ptrInt(100_000),
		SweepChunkFrames:           ptrInt(1000),
		IndexCacheEnabled:          ptrBool(true),
	}
}

// Load reads a JSON tuning file from path and merges it over Default().
func Load(path string) (TuningConfig, error) {
	cfg := Default()
	if filepath.Ext(path) != ".json" {
		return cfg, fmt.Errorf("config: %s: must have a .json extension", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return cfg, err
	}
	if info.Size() > maxConfigBytes {
		return cfg, fmt.Errorf("config: %s: exceeds %d byte limit", path, maxConfigBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var override TuningConfig
	if err := json.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.mergeFrom(override)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *TuningConfig) mergeFrom(o TuningConfig) {
	if o.SpikeThresholdRawADC != nil {
		c.SpikeThresholdRawADC = o.SpikeThresholdRawADC
	}
	if o.SpikeThresholdCalibratedMV != nil {
		c.SpikeThresholdCalibratedMV = o.SpikeThresholdCalibratedMV
	}
	if o.SkewBufferSoftLimit != nil {
		c.SkewBufferSoftLimit = o.SkewBufferSoftLimit
	}
	if o.SweepChunkFrames != nil {
		c.SweepChunkFrames = o.SweepChunkFrames
	}
	if o.IndexCacheEnabled != nil {
		c.IndexCacheEnabled = o.IndexCacheEnabled
	}
}

// Validate enforces that every tunable parameter is within range.
func (c TuningConfig) Validate() error {
	if c.SpikeThresholdRawADC == nil || *c.SpikeThresholdRawADC <= 0 {
		return fmt.Errorf("config: spike_threshold_raw_adc must be positive")
	}
	if c.SpikeThresholdCalibratedMV == nil || *c.SpikeThresholdCalibratedMV <= 0 {
		return fmt.Errorf("config: spike_threshold_calibrated_mv must be positive")
	}
	if c.SkewBufferSoftLimit == nil || *c.SkewBufferSoftLimit <= 0 {
		return fmt.Errorf("config: skew_buffer_soft_limit must be positive")
	}
	if c.SweepChunkFrames == nil || *c.SweepChunkFrames <= 0 {
		return fmt.Errorf("config: sweep_chunk_frames must be positive")
	}
	return nil
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
