/*
This file contains common utility functions for converting between the unsigned 256-bit
integers used by the rate curve and the signed SDK integers used for debt deltas.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
)

// Uint256ToSDKInt converts an unsigned 256-bit integer to a signed SDK Int.
// sdkmath.Int carries a full 256-bit magnitude, so the conversion never loses bits.
func Uint256ToSDKInt(amount *uint256.Int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(amount.ToBig())
}

// SDKIntToUint256 converts a signed SDK Int back to an unsigned 256-bit integer.
func SDKIntToUint256(amount sdkmath.Int) (*uint256.Int, error) {
	if amount.IsNil() {
		return nil, ErrAmountNil
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrAmountNegative, amount.String())
	}
	result, overflow := uint256.FromBig(amount.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit 256 bits", ErrConversionFailed, amount.String())
	}
	return result, nil
}

// BigToUint256 converts a decoded *big.Int into a uint256 value.
func BigToUint256(amount *big.Int) (uint256.Int, error) {
	if amount == nil {
		return uint256.Int{}, ErrAmountNil
	}
	if amount.Sign() < 0 {
		return uint256.Int{}, fmt.Errorf("%w: %s", ErrAmountNegative, amount.String())
	}
	result, overflow := uint256.FromBig(amount)
	if overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s does not fit 256 bits", ErrConversionFailed, amount.String())
	}
	return *result, nil
}

// TruncateToUint64 narrows a 256-bit value to its low 64 bits, the same way
// integer truncation would.
func TruncateToUint64(amount *uint256.Int) uint64 {
	return amount.Uint64()
}
