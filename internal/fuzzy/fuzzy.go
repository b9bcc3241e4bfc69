// Package fuzzy computes green-light durations from vehicle counts.
//
// A count is fuzzified into three membership degrees (few, medium,
// many), then defuzzified as a weighted average of per-region duration
// constants. The constants switch to longer values during rush hour.
// The function is pure and total: any count maps to a finite duration.
package fuzzy

// Few returns the degree in [0,1] to which count x belongs to the
// "few vehicles" category. Non-increasing in x.
func (p *Profile) Few(x float64) float64 {
	if x < 0 {
		x = 0
	}
	switch {
	case x <= p.FewFull:
		return 1
	case x < p.FewZero:
		return (p.FewZero - x) / (p.FewZero - p.FewFull)
	default:
		return 0
	}
}

// Medium returns the degree in [0,1] for the "medium" category.
// Unimodal: rises from MediumLow to MediumPeak, falls to MediumHigh.
func (p *Profile) Medium(x float64) float64 {
	if x < 0 {
		x = 0
	}
	switch {
	case x <= p.MediumLow || x >= p.MediumHigh:
		return 0
	case x <= p.MediumPeak:
		return (x - p.MediumLow) / (p.MediumPeak - p.MediumLow)
	default:
		return (p.MediumHigh - x) / (p.MediumHigh - p.MediumPeak)
	}
}

// Many returns the degree in [0,1] for the "many vehicles" category.
// Non-decreasing in x.
func (p *Profile) Many(x float64) float64 {
	if x < 0 {
		x = 0
	}
	switch {
	case x <= p.ManyZero:
		return 0
	case x < p.ManyFull:
		return (x - p.ManyZero) / (p.ManyFull - p.ManyZero)
	default:
		return 1
	}
}

// Duration returns the green duration in seconds for the given vehicle
// count. The three membership degrees weight the per-region duration
// constants; rush hour selects the longer constant set. When all three
// degrees are zero (a gap between membership regions) the profile's
// rush-conditioned default is returned unscaled.
func (p *Profile) Duration(count float64, rushHour bool) float64 {
	few := p.Few(count)
	medium := p.Medium(count)
	many := p.Many(count)

	set := p.Durations
	if rushHour {
		set = p.RushDurations
	}

	denominator := few + medium + many
	if denominator == 0 {
		if rushHour {
			return p.RushDefault
		}
		return p.Default
	}

	d := (few*set.Few + medium*set.Medium + many*set.Many) / denominator
	if rushHour && p.RushFactor > 0 {
		d *= p.RushFactor
	}
	return d
}
