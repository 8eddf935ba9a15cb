package drawsched

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds scheduler settings and the per-backend profitability
// thresholds. Areas are in square pixels of the visible draw area.
//
// The zero value is not useful; start from DefaultConfig.
type Config struct {
	// PreserveOverlapOrder holds back a task while an earlier unfinished
	// task of the same layer overlaps it.
	PreserveOverlapOrder bool `toml:"preserve_overlap_order" yaml:"preserve_overlap_order"`

	// Synchronous executes tasks in the dispatching goroutine instead of
	// one worker goroutine per unit.
	Synchronous bool `toml:"synchronous" yaml:"synchronous"`

	// MemoryBudget limits the bytes of layer buffers. 0 means unlimited.
	MemoryBudget int64 `toml:"memory_budget" yaml:"memory_budget"`

	Software SoftwareConfig `toml:"software" yaml:"software"`
	Blit2D   Blit2DConfig   `toml:"blit2d" yaml:"blit2d"`
	Vector   VectorConfig   `toml:"vector" yaml:"vector"`
	GLPath   GLPathConfig   `toml:"glpath" yaml:"glpath"`
}

// SoftwareConfig configures the CPU fallback.
type SoftwareConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	Score   int  `toml:"score" yaml:"score"`
}

// Blit2DConfig configures the 2D blitter backend.
type Blit2DConfig struct {
	Enabled                bool `toml:"enabled" yaml:"enabled"`
	Score                  int  `toml:"score" yaml:"score"`
	OpaqueFillMinArea      int  `toml:"opaque_fill_min_area" yaml:"opaque_fill_min_area"`
	TranslucentFillMinArea int  `toml:"translucent_fill_min_area" yaml:"translucent_fill_min_area"`
	ImageMinArea           int  `toml:"image_min_area" yaml:"image_min_area"`
	LayerMinArea           int  `toml:"layer_min_area" yaml:"layer_min_area"`
	MapCacheSize           int  `toml:"map_cache_size" yaml:"map_cache_size"`
}

// VectorConfig configures the vector GPU backend.
type VectorConfig struct {
	Enabled           bool `toml:"enabled" yaml:"enabled"`
	Score             int  `toml:"score" yaml:"score"`
	FillMinArea       int  `toml:"fill_min_area" yaml:"fill_min_area"`
	ImageMinArea      int  `toml:"image_min_area" yaml:"image_min_area"`
	MaxGradientStops  int  `toml:"max_gradient_stops" yaml:"max_gradient_stops"`
	GradientCacheSize int  `toml:"gradient_cache_size" yaml:"gradient_cache_size"`
	PendingCapacity   int  `toml:"pending_capacity" yaml:"pending_capacity"`
}

// GLPathConfig configures the OpenGL path backend.
type GLPathConfig struct {
	Enabled          bool `toml:"enabled" yaml:"enabled"`
	LayerScore       int  `toml:"layer_score" yaml:"layer_score"`
	ImageScore       int  `toml:"image_score" yaml:"image_score"`
	ImageMinArea     int  `toml:"image_min_area" yaml:"image_min_area"`
	TextureCacheSize int  `toml:"texture_cache_size" yaml:"texture_cache_size"`
	PendingCapacity  int  `toml:"pending_capacity" yaml:"pending_capacity"`
}

// DefaultConfig returns the default configuration: every backend enabled,
// software at score 100 and the hardware backends below it.
func DefaultConfig() Config {
	return Config{
		Software: SoftwareConfig{
			Enabled: true,
			Score:   100,
		},
		Blit2D: Blit2DConfig{
			Enabled:                true,
			Score:                  70,
			OpaqueFillMinArea:      12100,
			TranslucentFillMinArea: 2500,
			ImageMinArea:           10000,
			LayerMinArea:           10000,
			MapCacheSize:           32,
		},
		Vector: VectorConfig{
			Enabled:           true,
			Score:             80,
			FillMinArea:       5000,
			ImageMinArea:      5000,
			MaxGradientStops:  8,
			GradientCacheSize: 16,
			PendingCapacity:   16,
		},
		GLPath: GLPathConfig{
			Enabled:          true,
			LayerScore:       60,
			ImageScore:       85,
			ImageMinArea:     2500,
			TextureCacheSize: 32,
			PendingCapacity:  32,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MemoryBudget < 0 {
		return fmt.Errorf("%w: memory_budget %d is negative", ErrInvalidConfig, c.MemoryBudget)
	}
	if c.Software.Enabled && c.Software.Score <= 0 {
		return fmt.Errorf("%w: software.score must be positive", ErrInvalidConfig)
	}
	scores := []struct {
		name  string
		value int
	}{
		{"blit2d.score", c.Blit2D.Score},
		{"vector.score", c.Vector.Score},
		{"glpath.layer_score", c.GLPath.LayerScore},
		{"glpath.image_score", c.GLPath.ImageScore},
	}
	for _, s := range scores {
		if s.value < 0 || s.value >= ScoreUnclaimed {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, s.name, s.value)
		}
	}
	sizes := []struct {
		name  string
		value int
	}{
		{"blit2d.map_cache_size", c.Blit2D.MapCacheSize},
		{"vector.gradient_cache_size", c.Vector.GradientCacheSize},
		{"vector.pending_capacity", c.Vector.PendingCapacity},
		{"glpath.texture_cache_size", c.GLPath.TextureCacheSize},
		{"glpath.pending_capacity", c.GLPath.PendingCapacity},
	}
	for _, s := range sizes {
		if s.value < 0 {
			return fmt.Errorf("%w: %s %d is negative", ErrInvalidConfig, s.name, s.value)
		}
	}
	if c.Vector.Enabled && c.Vector.MaxGradientStops < 2 {
		return fmt.Errorf("%w: vector.max_gradient_stops must be at least 2", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over
// DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("drawsched: load config: %w", err)
	}
	if err := DecodeConfig(&cfg, filepath.Ext(path), data); err != nil {
		return cfg, fmt.Errorf("drawsched: load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeConfig decodes data in the format named by ext into cfg. Fields
// absent from data keep their current values.
func DecodeConfig(cfg *Config, ext string, data []byte) error {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		return toml.Unmarshal(data, cfg)
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: unknown config format %q", ErrInvalidConfig, ext)
	}
}
