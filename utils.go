package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// loadConfig reads the config file on top of the compiled-in defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// clearFrame fills the whole frame with c.
func clearFrame(frame *image.RGBA, c color.RGBA) {
	for i := 0; i+3 < len(frame.Pix); i += 4 {
		frame.Pix[i] = c.R
		frame.Pix[i+1] = c.G
		frame.Pix[i+2] = c.B
		frame.Pix[i+3] = c.A
	}
}

// cloneFrame returns a deep copy so the source frame can keep changing.
func cloneFrame(frame *image.RGBA) *image.RGBA {
	if frame == nil {
		return nil
	}
	out := &image.RGBA{
		Pix:    make([]uint8, len(frame.Pix)),
		Stride: frame.Stride,
		Rect:   frame.Rect,
	}
	copy(out.Pix, frame.Pix)
	return out
}
