package models

import (
	"math"
	"time"

	apperr "churngen/pkg/errors"
)

const weightTolerance = 1e-9

const (
	maxBaseOrders = 10000 // Poisson mean ceiling per customer
	maxBaseAmount = 1e9   // keeps 1.5 x base inside DECIMAL(12,2)
	minAmount     = 0.01  // 0.5 x base must be at least one cent
)

// DateLayout is used for every date column and every configured date.
const DateLayout = "2006-01-02"

// Calendar fixes the observation windows. All dates are UTC midnights.
type Calendar struct {
	FirstHalfStart time.Time // first day of the first-half window
	Cutoff         time.Time // last day of the first-half window
	SecondHalfEnd  time.Time // last day of the second-half window
	ReferenceDate  time.Time // registration dates are counted back from here
}

// SecondHalfStart is the day right after the cutoff.
func (c Calendar) SecondHalfStart() time.Time {
	return c.Cutoff.AddDate(0, 0, 1)
}

// InFirstHalf reports whether d lies in [FirstHalfStart, Cutoff].
func (c Calendar) InFirstHalf(d time.Time) bool {
	return !d.Before(c.FirstHalfStart) && !d.After(c.Cutoff)
}

// AfterCutoff reports whether d is strictly after the cutoff.
func (c Calendar) AfterCutoff(d time.Time) bool {
	return d.After(c.Cutoff)
}

// DayRange is an inclusive range of day offsets.
type DayRange struct {
	Min int
	Max int
}

// Config holds every generation parameter. A validated Config cannot produce an invalid row.
type Config struct {
	Seed      int64
	Customers int

	SegmentWeights PerSegment
	RegionWeights  RegionWeights
	ChurnProb      PerSegment // latent churn probability per segment
	BaseOrders     PerSegment // Poisson mean for a retained customer
	BaseAmount     PerSegment // amounts are drawn in [0.5, 1.5] x base

	ChurnedStatus  StatusWeights
	RetainedStatus StatusWeights

	ChurnedOrderFactor float64 // scales BaseOrders for churned customers
	ChurnedMinOrders   int
	RetainedMinOrders  int

	Calendar        Calendar
	Registration    DayRange // days before Calendar.ReferenceDate
	ChurnedHistory  DayRange // days before Calendar.Cutoff, for non-first churned orders
	RetainedHistory DayRange // days before Calendar.SecondHalfEnd, for the third order onward
}

// DefaultConfig returns the lab's reference parameters.
func DefaultConfig() Config {
	return Config{
		Seed:               42,
		Customers:          3000,
		SegmentWeights:     PerSegment{Premium: 0.2, Standard: 0.5, Basic: 0.3},
		RegionWeights:      RegionWeights{0.25, 0.25, 0.25, 0.25},
		ChurnProb:          PerSegment{Premium: 0.15, Standard: 0.35, Basic: 0.50},
		BaseOrders:         PerSegment{Premium: 12, Standard: 8, Basic: 4},
		BaseAmount:         PerSegment{Premium: 300, Standard: 200, Basic: 100},
		ChurnedStatus:      StatusWeights{Fulfilled: 0.75, Returned: 0.18, Cancelled: 0.07},
		RetainedStatus:     StatusWeights{Fulfilled: 0.90, Returned: 0.07, Cancelled: 0.03},
		ChurnedOrderFactor: 0.6,
		ChurnedMinOrders:   1,
		RetainedMinOrders:  2,
		Calendar: Calendar{
			FirstHalfStart: Date(2024, time.January, 1),
			Cutoff:         Date(2024, time.June, 30),
			SecondHalfEnd:  Date(2024, time.December, 31),
			ReferenceDate:  Date(2024, time.June, 30),
		},
		Registration:    DayRange{Min: 365, Max: 1094},
		ChurnedHistory:  DayRange{Min: 180, Max: 549},
		RetainedHistory: DayRange{Min: 0, Max: 729},
	}
}

// Date builds a UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Validate rejects any configuration that could break the row invariants.
// It runs before the first random draw.
func (c Config) Validate() error {
	if c.Customers <= 0 {
		return apperr.Newf(apperr.ErrConfig, "customers must be > 0, got %d", c.Customers)
	}
	if err := validateWeights("segment", c.SegmentWeights[:]); err != nil {
		return err
	}
	if err := validateWeights("region", c.RegionWeights[:]); err != nil {
		return err
	}
	if err := validateWeights("churned status", c.ChurnedStatus[:]); err != nil {
		return err
	}
	if err := validateWeights("retained status", c.RetainedStatus[:]); err != nil {
		return err
	}
	for s := Segment(0); s < NumSegments; s++ {
		if p := c.ChurnProb[s]; math.IsNaN(p) || p < 0 || p > 1 {
			return apperr.Newf(apperr.ErrConfig, "churn probability for %s must be in [0,1], got %v", s, p)
		}
		if n := c.BaseOrders[s]; !finite(n) || n < 0 || n > maxBaseOrders {
			return apperr.Newf(apperr.ErrConfig, "base order count for %s must be in [0,%d], got %v", s, maxBaseOrders, n)
		}
		if a := c.BaseAmount[s]; !finite(a) || 0.5*a < minAmount || a > maxBaseAmount {
			return apperr.Newf(apperr.ErrConfig, "base amount for %s must be in [%v,%v], got %v", s, 2*minAmount, float64(maxBaseAmount), a)
		}
	}
	if f := c.ChurnedOrderFactor; !finite(f) || f < 0 || f*maxSegment(c.BaseOrders) > maxBaseOrders {
		return apperr.Newf(apperr.ErrConfig, "churned order factor must be >= 0 and keep the churned mean <= %d, got %v", maxBaseOrders, f)
	}
	// Churned customers use one forced slot, retained customers two.
	if c.ChurnedMinOrders < 1 {
		return apperr.Newf(apperr.ErrConfig, "churned minimum orders must be >= 1, got %d", c.ChurnedMinOrders)
	}
	if c.RetainedMinOrders < 2 {
		return apperr.Newf(apperr.ErrConfig, "retained minimum orders must be >= 2, got %d", c.RetainedMinOrders)
	}

	cal := c.Calendar
	if cal.Cutoff.Before(cal.FirstHalfStart) {
		return apperr.Newf(apperr.ErrConfig, "cutoff %s is before first half start %s",
			cal.Cutoff.Format(DateLayout), cal.FirstHalfStart.Format(DateLayout))
	}
	if !cal.SecondHalfEnd.After(cal.Cutoff) {
		return apperr.Newf(apperr.ErrConfig, "second half end %s must be after cutoff %s",
			cal.SecondHalfEnd.Format(DateLayout), cal.Cutoff.Format(DateLayout))
	}
	if err := validateRange("registration", c.Registration); err != nil {
		return err
	}
	if err := validateRange("churned history", c.ChurnedHistory); err != nil {
		return err
	}
	return validateRange("retained history", c.RetainedHistory)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxSegment(v PerSegment) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = math.Max(m, x)
	}
	return m
}

func validateWeights(axis string, w []float64) error {
	sum := 0.0
	for i, v := range w {
		if !finite(v) || v < 0 {
			return apperr.Newf(apperr.ErrConfig, "%s weight #%d must be >= 0, got %v", axis, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return apperr.Newf(apperr.ErrConfig, "%s weights must sum to 1, got %v", axis, sum)
	}
	return nil
}

// Negative offsets would push churned orders past the cutoff.
func validateRange(name string, r DayRange) error {
	if r.Min < 0 || r.Max < r.Min {
		return apperr.Newf(apperr.ErrConfig, "%s day range [%d, %d] is invalid", name, r.Min, r.Max)
	}
	return nil
}
