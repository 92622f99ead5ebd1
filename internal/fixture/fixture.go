// Package fixture defines the contract between the host and the IR light
// translators: the target state handed in, the traits advertised back, and the
// threshold tables translators use to pick discrete commands.
package fixture

import (
	"context"
	"math"
)

// Kind identifies a translator model.
type Kind string

// Translator kinds
const (
	KindStepwise    Kind = "stepwise"
	KindDualChannel Kind = "dualchannel"
	KindBoxLight    Kind = "boxlight"
)

// ColorMode is a control mode advertised to the host.
type ColorMode string

// ColorModeColorTemperature is the only mode these fixtures support.
const ColorModeColorTemperature ColorMode = "color_temperature"

// Target is the requested light state for one translation call.
type Target struct {
	Brightness float64 `json:"brightness"` // 0..1, 0 means off
	Mireds     float64 `json:"mireds"`     // color temperature in mireds
}

// Level returns the brightness clamped to [0,1]. NaN is treated as off.
func (t Target) Level() float64 {
	switch {
	case math.IsNaN(t.Brightness), t.Brightness <= 0:
		return 0
	case t.Brightness >= 1:
		return 1
	}
	return t.Brightness
}

// IsOff reports whether the target turns the light off.
func (t Target) IsOff() bool {
	return t.Level() == 0
}

// Traits describe what a translator accepts.
type Traits struct {
	ColorModes []ColorMode `json:"color_modes"`
	MinMireds  float64     `json:"min_mireds"`
	MaxMireds  float64     `json:"max_mireds"`
}

// ColorTemperatureTraits returns traits for a color-temperature-only fixture.
func ColorTemperatureTraits(minMireds, maxMireds float64) Traits {
	return Traits{
		ColorModes: []ColorMode{ColorModeColorTemperature},
		MinMireds:  minMireds,
		MaxMireds:  maxMireds,
	}
}

// Supports reports whether mode is advertised.
func (t Traits) Supports(mode ColorMode) bool {
	for _, m := range t.ColorModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ClampMireds limits m to the advertised range.
func (t Traits) ClampMireds(m float64) float64 {
	if math.IsNaN(m) {
		return t.MinMireds
	}
	return math.Min(math.Max(m, t.MinMireds), t.MaxMireds)
}

// Normalize maps m onto [0,1] across the advertised range (0 = coldest).
func (t Traits) Normalize(m float64) float64 {
	span := t.MaxMireds - t.MinMireds
	if span <= 0 {
		return 0
	}
	return (t.ClampMireds(m) - t.MinMireds) / span
}

// Translator turns a target into IR commands. Apply never fails: inputs are
// clamped and transmit errors are logged, not returned.
type Translator interface {
	Kind() Kind
	Traits() Traits
	Apply(ctx context.Context, target Target)
}

// LevelUnknown marks a ladder position that hasn't been established yet.
const LevelUnknown = -1

// ScaleLevel maps v in [0,1] onto a ten-rung ladder with floor(v*10),
// saturating at top. The product is taken in float64; remotes computing it in
// float32 land one rung lower on some edges such as 0.7.
func ScaleLevel(v float64, top int) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	level := int(v * 10)
	if level > top {
		return top
	}
	return level
}

// LevelBelow returns the index of the first threshold v is strictly below, or
// len(thresholds) when v is at or above all of them.
func LevelBelow(thresholds []float64, v float64) int {
	for i, th := range thresholds {
		if v < th {
			return i
		}
	}
	return len(thresholds)
}
