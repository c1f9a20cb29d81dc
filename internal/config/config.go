// Package config reads glowlens settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/lighting"
)

// Config holds all runtime settings.
type Config struct {
	Addr    string `validate:"required"`
	DataDir string `validate:"required"`

	FaceCamera int `validate:"gte=0"`
	HandCamera int `validate:"gte=0"`
	Width      int `validate:"gte=160,lte=7680"`
	Height     int `validate:"gte=120,lte=4320"`
	FPS        int `validate:"gte=1,lte=120"`

	LightingStride int           `validate:"gte=1"`
	FaceLowLight   float64       `validate:"gt=0,lte=255"`
	HandLowLight   float64       `validate:"gt=0,lte=255"`
	StageDelay     time.Duration `validate:"gte=0,lte=10s"`
	MinConfidence  float64       `validate:"gte=0,lte=1"`

	ModelDir string
	Python   string

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{
		Addr:     getEnv("GLOWLENS_ADDR", ":8080"),
		DataDir:  getEnv("GLOWLENS_DATA_DIR", filepath.Join(home, ".glowlens")),
		ModelDir: getEnv("GLOWLENS_MODEL_DIR", ""),
		Python:   getEnv("GLOWLENS_PYTHON", ""),
		LogLevel: getEnv("GLOWLENS_LOG_LEVEL", "info"),
		LogFile:  getEnv("GLOWLENS_LOG_FILE", ""),
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"GLOWLENS_FACE_CAMERA", &cfg.FaceCamera, 0},
		{"GLOWLENS_HAND_CAMERA", &cfg.HandCamera, 0},
		{"GLOWLENS_WIDTH", &cfg.Width, capture.DefaultWidth},
		{"GLOWLENS_HEIGHT", &cfg.Height, capture.DefaultHeight},
		{"GLOWLENS_FPS", &cfg.FPS, capture.DefaultFPS},
		{"GLOWLENS_LIGHTING_STRIDE", &cfg.LightingStride, lighting.DefaultStride},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	floats := []struct {
		key string
		dst *float64
		def float64
	}{
		{"GLOWLENS_FACE_LOW_LIGHT", &cfg.FaceLowLight, lighting.FaceThreshold},
		{"GLOWLENS_HAND_LOW_LIGHT", &cfg.HandLowLight, lighting.HandThreshold},
		{"GLOWLENS_MIN_CONFIDENCE", &cfg.MinConfidence, 0.5},
	}
	for _, v := range floats {
		if *v.dst, err = getEnvFloat(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if cfg.StageDelay, err = getEnvDuration("GLOWLENS_STAGE_DELAY", time.Second); err != nil {
		return nil, err
	}

	if cfg.ModelDir == "" {
		cfg.ModelDir = filepath.Join(cfg.DataDir, "models")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DatabasePath is the SQLite file under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "glowlens.db")
}

// ExportDir is where rendered cards are written by the CLI.
func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// Constraints returns the camera request for a topology. Faces use the
// user-facing camera and hands the environment-facing one.
func (c *Config) Constraints(t landmark.Topology) capture.Constraints {
	cons := capture.Constraints{
		DeviceID: c.FaceCamera,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      c.FPS,
		Facing:   capture.FacingUser,
	}
	if t.Kind() == "hand" {
		cons.DeviceID = c.HandCamera
		cons.Facing = capture.FacingEnvironment
	}
	return cons
}

// LowLight returns the low-light threshold for a topology.
func (c *Config) LowLight(t landmark.Topology) float64 {
	if t.Kind() == "hand" {
		return c.HandLowLight
	}
	return c.FaceLowLight
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
