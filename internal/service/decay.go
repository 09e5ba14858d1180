package service

import (
	"fmt"
	"math"
	"time"
)

// DecayFunc maps the age of a chunk to a weight in [0,1], 1 for brand new.
type DecayFunc func(age time.Duration) float64

// Decay function names accepted by NewDecayFunc.
const (
	DecayExponential = "exponential"
	DecayLinear      = "linear"
	DecayStep        = "step"
)

// NewDecayFunc returns a decay function by name. halfLife is the age at
// which the weight reaches 0.5 for every variant.
func NewDecayFunc(name string, halfLife time.Duration) (DecayFunc, error) {
	if halfLife <= 0 {
		return nil, fmt.Errorf("decay half-life must be positive, got %s", halfLife)
	}

	switch name {
	case DecayExponential, "":
		return ExponentialDecay(halfLife), nil
	case DecayLinear:
		return LinearDecay(2 * halfLife), nil
	case DecayStep:
		return StepDecay(halfLife), nil
	}

	return nil, fmt.Errorf("unknown decay function %q", name)
}

// ExponentialDecay halves the weight every halfLife.
func ExponentialDecay(halfLife time.Duration) DecayFunc {
	return func(age time.Duration) float64 {
		if age <= 0 {
			return 1
		}

		return math.Exp2(-float64(age) / float64(halfLife))
	}
}

// LinearDecay falls from 1 to 0 over span.
func LinearDecay(span time.Duration) DecayFunc {
	return func(age time.Duration) float64 {
		if age <= 0 {
			return 1
		}

		return clamp01(1 - float64(age)/float64(span))
	}
}

// StepDecay is 1 up to one step, 0.5 up to two steps and 0 beyond.
func StepDecay(step time.Duration) DecayFunc {
	return func(age time.Duration) float64 {
		switch {
		case age < step:
			return 1
		case age < 2*step:
			return 0.5
		}

		return 0
	}
}
