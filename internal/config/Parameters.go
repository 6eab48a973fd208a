/*

This file contains the default parameters for the allocator.

The defaults keep the established allocation behaviour, so journals stay byte-compatible with
existing consumers: infeasible chunks fall back to the first strategy and the final chunk books
diff - unit*(chunkCount-1) on it. Only the fail policy guarantees every target stays within max debt.

*/

package config

import (
	"github.com/elys-network/allocator/internal/optimizer"
)

const (
	DefaultLogLevel         = "info"
	DefaultInfeasiblePolicy = string(optimizer.PolicyFallback)
	DefaultWebPort          = "8080"

	DefaultDBPort    uint64 = 5432
	DefaultDBName           = "allocator"
	DefaultDBSSLMode        = "disable"
)

// AllocatorOptions builds the optimizer options from the loaded configuration.
func AllocatorOptions() (optimizer.Options, error) {
	policy, err := optimizer.ParseInfeasiblePolicy(InfeasiblePolicy)
	if err != nil {
		return optimizer.Options{}, err
	}
	return optimizer.Options{
		InfeasiblePolicy:  policy,
		ConserveRemainder: ConserveRemainder,
	}, nil
}
