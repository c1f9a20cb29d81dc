// Package catalog holds the bundled palettes and recommendation copy.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// PaletteSize is the fixed number of swatches in every palette.
const PaletteSize = 6

// ErrNotFound is returned when a category has no catalog entry.
var ErrNotFound = errors.New("not found")

// Swatch is one named color.
type Swatch struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Hex  string `yaml:"hex" json:"hex" validate:"required,hexcolor"`
}

// Palette is the curated set of swatches for a color category.
type Palette struct {
	Title       string   `yaml:"title" json:"title" validate:"required"`
	Description string   `yaml:"description" json:"description" validate:"required"`
	Swatches    []Swatch `yaml:"swatches" json:"swatches" validate:"len=6,dive"`
}

// Recommendation is the user-facing copy for a geometry category.
type Recommendation struct {
	Title   string   `yaml:"title" json:"title" validate:"required"`
	Summary string   `yaml:"summary" json:"summary" validate:"required"`
	Tips    []string `yaml:"tips" json:"tips" validate:"min=1,dive,required"`
	Image   string   `yaml:"image,omitempty" json:"image,omitempty"`
}

// Catalog is the full static lookup table.
type Catalog struct {
	Palettes        map[string]Palette `yaml:"palettes" validate:"required,dive"`
	Recommendations struct {
		Face map[string]Recommendation `yaml:"face" validate:"required,dive"`
		Hand map[string]Recommendation `yaml:"hand" validate:"required,dive"`
	} `yaml:"recommendations"`
}

// Load parses and validates the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for program initialization; the embedded file is part of the build.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic("failed to load embedded catalog.yaml: " + err.Error())
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return &c, nil
}

// Palette returns the palette for a color category name.
func (c *Catalog) Palette(category string) (Palette, error) {
	p, ok := c.Palettes[category]
	if !ok {
		return Palette{}, fmt.Errorf("palette %q: %w", category, ErrNotFound)
	}
	return p, nil
}

// Recommendation returns the copy for a geometry category under subject kind ("face" or "hand").
func (c *Catalog) Recommendation(kind, category string) (Recommendation, error) {
	var table map[string]Recommendation
	switch kind {
	case "face":
		table = c.Recommendations.Face
	case "hand":
		table = c.Recommendations.Hand
	default:
		return Recommendation{}, fmt.Errorf("recommendation kind %q: %w", kind, ErrNotFound)
	}

	r, ok := table[category]
	if !ok {
		return Recommendation{}, fmt.Errorf("recommendation %s/%s: %w", kind, category, ErrNotFound)
	}
	return r, nil
}
