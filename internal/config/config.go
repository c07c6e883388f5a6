package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout holds the daily-grid geometry and the per-cell slot budgets.
type Layout struct {
	HourHeight      int `yaml:"hour_height"`
	TopOffset       int `yaml:"top_offset"`
	MinEventHeight  int `yaml:"min_event_height"`
	WeekCellBudget  int `yaml:"week_cell_budget"`
	MonthCellBudget int `yaml:"month_cell_budget"`
}

// Notes holds annotation-subsystem tunables.
type Notes struct {
	SuggestionLimit int `yaml:"suggestion_limit"`
	ImageMaxEdge    int `yaml:"image_max_edge"`
	ImageQuality    int `yaml:"image_quality"`
}

// Config is the optional YAML-file configuration. Everything has a working
// default so the file may be absent entirely.
type Config struct {
	NoisePhrases []string `yaml:"noise_phrases"`
	Layout       Layout   `yaml:"layout"`
	Notes        Notes    `yaml:"notes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NoisePhrases: []string{
			"office",
			"working hours",
			"work hours",
			"availability",
			"busy",
			"out of office",
			"lunch",
			"break",
		},
		Layout: Layout{
			HourHeight:      80,
			TopOffset:       20,
			MinEventHeight:  50,
			WeekCellBudget:  2,
			MonthCellBudget: 1,
		},
		Notes: Notes{
			SuggestionLimit: 5,
			ImageMaxEdge:    1280,
			ImageQuality:    80,
		},
	}
}

// Load reads the YAML file at path and overlays it on the defaults. An empty
// path or a missing file yields the defaults without error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFloors()
	return cfg, nil
}

func (c *Config) applyFloors() {
	d := Default()
	if len(c.NoisePhrases) == 0 {
		c.NoisePhrases = d.NoisePhrases
	}
	if c.Layout.HourHeight <= 0 {
		c.Layout.HourHeight = d.Layout.HourHeight
	}
	if c.Layout.TopOffset < 0 {
		c.Layout.TopOffset = d.Layout.TopOffset
	}
	if c.Layout.MinEventHeight <= 0 {
		c.Layout.MinEventHeight = d.Layout.MinEventHeight
	}
	if c.Layout.WeekCellBudget <= 0 {
		c.Layout.WeekCellBudget = d.Layout.WeekCellBudget
	}
	if c.Layout.MonthCellBudget <= 0 {
		c.Layout.MonthCellBudget = d.Layout.MonthCellBudget
	}
	if c.Notes.SuggestionLimit <= 0 {
		c.Notes.SuggestionLimit = d.Notes.SuggestionLimit
	}
	if c.Notes.ImageMaxEdge <= 0 {
		c.Notes.ImageMaxEdge = d.Notes.ImageMaxEdge
	}
	if c.Notes.ImageQuality <= 0 || c.Notes.ImageQuality > 100 {
		c.Notes.ImageQuality = d.Notes.ImageQuality
	}
}
