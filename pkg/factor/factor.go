// Package factor provides a deterministic prime factorizer used as the
// memoized computation in the factorizer example and tests.
package factor

import (
	"context"
	"errors"
	"fmt"
)

// ErrNonPositive is returned for inputs that have no prime factorization
var ErrNonPositive = errors.New("factor: input must be positive")

// batch is how many trial divisors are tried between context checks
const batch = 1 << 14

// Factor returns the prime factors of n in ascending order, with
// multiplicity. Factor(1) returns an empty slice. It stops early with
// ctx.Err() when ctx is done.
func Factor(ctx context.Context, n int64) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNonPositive, n)
	}

	factors := []int64{}
	for n%2 == 0 {
		factors = append(factors, 2)
		n /= 2
	}

	tried := 0
	for d := int64(3); d <= n/d; d += 2 {
		if tried++; tried%batch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for n%d == 0 {
			factors = append(factors, d)
			n /= d
		}
	}

	if n > 1 {
		factors = append(factors, n)
	}
	return factors, nil
}

// Product multiplies factors back together. Product(nil) is 1.
func Product(factors []int64) int64 {
	p := int64(1)
	for _, f := range factors {
		p *= f
	}
	return p
}
