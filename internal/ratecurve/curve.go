/*

This file contains the rate curve of a lending strategy.

The full utilization rate drifts over time: it decays toward zero while utilization sits below
the target band and grows while utilization sits above it, following a half-life law. The
per-second borrow rate is then read off a two-slope curve whose kink ("vertex") is placed at
vertex_utilization.

All arithmetic is unsigned 256-bit with truncating division. Results are narrowed to 64 bits
by truncation, before the clamp for the full utilization rate and at the end for the borrow rate.

*/

package ratecurve

import (
	"errors"

	"github.com/elys-network/allocator/internal/types"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/holiman/uint256"
)

// Error definitions for zero-tolerance error handling
var (
	ErrOverflow        = errors.New("arithmetic overflow")
	ErrUnderflow       = errors.New("arithmetic underflow")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrNegativeAssets  = errors.New("total assets after debt change would be negative")
	ErrNegativeElapsed = errors.New("current timestamp is before last timestamp")
)

// FullUtilizationRate returns the full utilization rate after deltaTime seconds at the given
// utilization, clamped to [MinFullUtilizationRate, MaxFullUtilizationRate].
func FullUtilizationRate(deltaTime, utilization *uint256.Int, p *types.CurveParams) (uint64, error) {
	var newRate uint64

	switch {
	case utilization.Lt(&p.MinTargetUtilization):
		// Below target: decay toward zero.
		gap := new(uint256.Int).Sub(&p.MinTargetUtilization, utilization)
		deltaUtilization, err := mulDiv(gap, scale, &p.MinTargetUtilization)
		if err != nil {
			return 0, err
		}
		halfLife, growth, err := decayGrowth(&p.RateHalfLife, deltaUtilization, deltaTime)
		if err != nil {
			return 0, err
		}
		numerator, err := mul(&p.FullUtilizationRate, halfLife)
		if err != nil {
			return 0, err
		}
		rate, err := div(numerator, growth)
		if err != nil {
			return 0, err
		}
		newRate = utils.TruncateToUint64(rate)

	case utilization.Gt(&p.MaxTargetUtilization):
		// Above target: grow.
		gap := new(uint256.Int).Sub(utilization, &p.MaxTargetUtilization)
		headroom, err := sub(&p.UtilizationPrecision, &p.MaxTargetUtilization)
		if err != nil {
			return 0, err
		}
		deltaUtilization, err := mulDiv(gap, scale, headroom)
		if err != nil {
			return 0, err
		}
		halfLife, growth, err := decayGrowth(&p.RateHalfLife, deltaUtilization, deltaTime)
		if err != nil {
			return 0, err
		}
		rate, err := mulDiv(&p.FullUtilizationRate, growth, halfLife)
		if err != nil {
			return 0, err
		}
		newRate = utils.TruncateToUint64(rate)

	default:
		newRate = utils.TruncateToUint64(&p.FullUtilizationRate)
	}

	maxRate := utils.TruncateToUint64(&p.MaxFullUtilizationRate)
	minRate := utils.TruncateToUint64(&p.MinFullUtilizationRate)
	if newRate > maxRate {
		newRate = maxRate
	} else if newRate < minRate {
		newRate = minRate
	}

	return newRate, nil
}

// decayGrowth returns (halfLife*1e36, halfLife*1e36 + deltaUtilization^2 * deltaTime).
func decayGrowth(rateHalfLife, deltaUtilization, deltaTime *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	halfLife, err := mul(rateHalfLife, scaleSquared)
	if err != nil {
		return nil, nil, err
	}
	squared, err := mul(deltaUtilization, deltaUtilization)
	if err != nil {
		return nil, nil, err
	}
	elapsed, err := mul(squared, deltaTime)
	if err != nil {
		return nil, nil, err
	}
	growth, err := add(halfLife, elapsed)
	if err != nil {
		return nil, nil, err
	}
	return halfLife, growth, nil
}

// RatePerSecond reads the borrow rate off the vertex curve for a given full utilization rate.
func RatePerSecond(fullUtilizationRate uint64, utilization *uint256.Int, p *types.CurveParams) (uint64, error) {
	full := uint256.NewInt(fullUtilizationRate)

	span, err := sub(full, &p.ZeroUtilizationRate)
	if err != nil {
		return 0, err
	}
	vertexShare, err := mulDiv(span, &p.VertexRatePercent, &p.RatePrecision)
	if err != nil {
		return 0, err
	}
	vertexInterest, err := add(vertexShare, &p.ZeroUtilizationRate)
	if err != nil {
		return 0, err
	}

	var rate *uint256.Int
	if utilization.Lt(&p.VertexUtilization) {
		// Lower slope: zero_utilization_rate at 0 up to vertexInterest at the vertex.
		slope := new(uint256.Int).Sub(vertexInterest, &p.ZeroUtilizationRate)
		rise, err := mulDiv(utilization, slope, &p.VertexUtilization)
		if err != nil {
			return 0, err
		}
		if rate, err = add(&p.ZeroUtilizationRate, rise); err != nil {
			return 0, err
		}
	} else {
		// Upper slope: vertexInterest at the vertex up to the full rate at 100%.
		slope, err := sub(full, vertexInterest)
		if err != nil {
			return 0, err
		}
		past := new(uint256.Int).Sub(utilization, &p.VertexUtilization)
		width, err := sub(&p.UtilizationPrecision, &p.VertexUtilization)
		if err != nil {
			return 0, err
		}
		rise, err := mulDiv(past, slope, width)
		if err != nil {
			return 0, err
		}
		if rate, err = add(vertexInterest, rise); err != nil {
			return 0, err
		}
	}

	return utils.TruncateToUint64(rate), nil
}

// NewRate runs both curve stages and returns (ratePerSecond, fullUtilizationRate).
func NewRate(deltaTime, utilization *uint256.Int, p *types.CurveParams) (uint64, uint64, error) {
	full, err := FullUtilizationRate(deltaTime, utilization, p)
	if err != nil {
		return 0, 0, err
	}
	rate, err := RatePerSecond(full, utilization, p)
	if err != nil {
		return 0, 0, err
	}
	return rate, full, nil
}
