package invoice

import "math"

// Weights are the confidence contributions of each signal. They are
// configuration, loaded from the rules file when present.
type Weights struct {
	WellFormed     float64 `yaml:"well_formed"`
	PerKey         float64 `yaml:"per_key"`
	PlausibleTotal float64 `yaml:"plausible_total"`
	ISODate        float64 `yaml:"iso_date"`
}

// DefaultWeights sum to exactly 1.0 for a clean, complete answer.
func DefaultWeights() Weights {
	return Weights{
		WellFormed:     0.2,
		PerKey:         0.15,
		PlausibleTotal: 0.1,
		ISODate:        0.1,
	}
}

// Merge overlays every non-zero weight of o onto w.
func (w Weights) Merge(o Weights) Weights {
	pick := func(base, over float64) float64 {
		if over != 0 {
			return over
		}
		return base
	}
	return Weights{
		WellFormed:     pick(w.WellFormed, o.WellFormed),
		PerKey:         pick(w.PerKey, o.PerKey),
		PlausibleTotal: pick(w.PlausibleTotal, o.PlausibleTotal),
		ISODate:        pick(w.ISODate, o.ISODate),
	}
}

// Signals are the observations confidence is computed from.
type Signals struct {
	// WellFormed is true when the JSON candidate parsed and type-checked without repair.
	WellFormed bool
	// PresentKeys counts the four business keys with a non-empty value.
	PresentKeys    int
	PlausibleTotal bool
	ISODate        bool
}

// Confidence is a pure function of the signals, clamped to [0, 1] and
// rounded to two decimals.
func Confidence(s Signals, w Weights) float64 {
	c := 0.0
	if s.WellFormed {
		c += w.WellFormed
	}
	keys := s.PresentKeys
	if keys > 4 {
		keys = 4
	}
	if keys > 0 {
		c += float64(keys) * w.PerKey
	}
	if s.PlausibleTotal {
		c += w.PlausibleTotal
	}
	if s.ISODate {
		c += w.ISODate
	}
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}
