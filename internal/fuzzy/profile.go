package fuzzy

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DurationSet holds the three per-region duration constants in seconds.
type DurationSet struct {
	Few    float64 `toml:"few"`
	Medium float64 `toml:"medium"`
	Many   float64 `toml:"many"`
}

// Profile holds one deployment's membership thresholds and duration
// constants. The shapes are fixed (few non-increasing, many
// non-decreasing, medium unimodal); only the breakpoints and constants
// vary per deployment.
type Profile struct {
	Name string `toml:"name"`

	// Membership breakpoints over vehicle count.
	FewFull    float64 `toml:"few_full"`    // few = 1 at or below
	FewZero    float64 `toml:"few_zero"`    // few = 0 at or above
	MediumLow  float64 `toml:"medium_low"`  // medium = 0 at or below
	MediumPeak float64 `toml:"medium_peak"` // medium maximal here
	MediumHigh float64 `toml:"medium_high"` // medium = 0 at or above
	ManyZero   float64 `toml:"many_zero"`   // many = 0 at or below
	ManyFull   float64 `toml:"many_full"`   // many = 1 at or above

	Durations     DurationSet `toml:"durations"`
	RushDurations DurationSet `toml:"rush_durations"`

	// Fallbacks when all three membership degrees are zero.
	Default     float64 `toml:"default"`
	RushDefault float64 `toml:"rush_default"`

	// RushFactor is an optional multiplicative post-scale applied to the
	// weighted blend during rush hour. Zero or one means no scaling.
	RushFactor float64 `toml:"rush_factor"`
}

// Intersection is the single-intersection reference profile.
func Intersection() *Profile {
	return &Profile{
		Name:          "intersection",
		FewFull:       3,
		FewZero:       5,
		MediumLow:     3,
		MediumPeak:    5,
		MediumHigh:    10,
		ManyZero:      5,
		ManyFull:      10,
		Durations:     DurationSet{Few: 10, Medium: 20, Many: 40},
		RushDurations: DurationSet{Few: 15, Medium: 30, Many: 60},
		Default:       20,
		RushDefault:   30,
	}
}

// Corridor is the arterial-corridor profile: the same shapes at higher
// volumes, with longer holds.
func Corridor() *Profile {
	return &Profile{
		Name:          "corridor",
		FewFull:       8,
		FewZero:       14,
		MediumLow:     8,
		MediumPeak:    14,
		MediumHigh:    30,
		ManyZero:      14,
		ManyFull:      30,
		Durations:     DurationSet{Few: 15, Medium: 30, Many: 55},
		RushDurations: DurationSet{Few: 20, Medium: 45, Many: 90},
		Default:       30,
		RushDefault:   45,
	}
}

// Load resolves a built-in profile name or decodes a TOML profile file.
func Load(nameOrPath string) (*Profile, error) {
	switch nameOrPath {
	case "intersection":
		return Intersection(), nil
	case "corridor":
		return Corridor(), nil
	}

	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("profile %q: not a built-in name and %w", nameOrPath, err)
	}
	var p Profile
	if _, err := toml.DecodeFile(nameOrPath, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", nameOrPath, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", nameOrPath, err)
	}
	return &p, nil
}

// Validate checks the ordering constraints the membership shapes rely on.
func (p *Profile) Validate() error {
	if p.FewFull < 0 || p.FewZero <= p.FewFull {
		return fmt.Errorf("few breakpoints: need 0 <= few_full < few_zero, got %v, %v", p.FewFull, p.FewZero)
	}
	if p.MediumPeak <= p.MediumLow || p.MediumHigh <= p.MediumPeak {
		return fmt.Errorf("medium breakpoints: need medium_low < medium_peak < medium_high, got %v, %v, %v",
			p.MediumLow, p.MediumPeak, p.MediumHigh)
	}
	if p.ManyZero < 0 || p.ManyFull <= p.ManyZero {
		return fmt.Errorf("many breakpoints: need 0 <= many_zero < many_full, got %v, %v", p.ManyZero, p.ManyFull)
	}
	for _, set := range []struct {
		name string
		d    DurationSet
	}{{"durations", p.Durations}, {"rush_durations", p.RushDurations}} {
		if set.d.Few <= 0 || set.d.Medium <= 0 || set.d.Many <= 0 {
			return fmt.Errorf("%s: all duration constants must be positive", set.name)
		}
	}
	if p.Default <= 0 || p.RushDefault <= 0 {
		return fmt.Errorf("defaults must be positive, got %v, %v", p.Default, p.RushDefault)
	}
	if p.RushFactor < 0 {
		return fmt.Errorf("rush_factor must not be negative, got %v", p.RushFactor)
	}
	return nil
}
