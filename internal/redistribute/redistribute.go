// Package redistribute spreads an edited aggregate across the rows that make
// it up, keeping each row's share of the total.
package redistribute

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput is returned for negative or non-finite totals and row
	// values, and when the supplied old total does not match the rows.
	ErrInvalidInput = errors.New("invalid redistribution input")
	// ErrUndefinedRedistribution is returned when the old total is zero and
	// there is no share to preserve.
	ErrUndefinedRedistribution = errors.New("redistribution undefined for zero total")
)

const (
	// sumTolerance is the relative slack allowed between oldTotal and the
	// actual row sum, to absorb float accumulation error.
	sumTolerance = 1e-9
	// MaxTotal is the largest new total accepted. Past 2^53 a float64 no
	// longer holds every integer, and far past it int64 overflows.
	MaxTotal = 1 << 53
)

// Update pairs a row with its recomputed value.
type Update[R any] struct {
	Row   R
	Value int64
}

// Proportional computes, for every row, round(newTotal * value(row) / oldTotal).
// Rows are returned in input order. The sum of the returned values differs
// from newTotal by at most len(rows)/2.
func Proportional[R any](rows []R, value func(R) float64, oldTotal, newTotal float64) ([]Update[R], error) {
	if !validAmount(newTotal) {
		return nil, fmt.Errorf("%w: new total %v", ErrInvalidInput, newTotal)
	}
	if newTotal > MaxTotal {
		return nil, fmt.Errorf("%w: new total %v exceeds %d", ErrInvalidInput, newTotal, int64(MaxTotal))
	}
	if !validAmount(oldTotal) {
		return nil, fmt.Errorf("%w: old total %v", ErrInvalidInput, oldTotal)
	}

	var sum float64
	for i, row := range rows {
		v := value(row)
		if !validAmount(v) {
			return nil, fmt.Errorf("%w: row %d has value %v", ErrInvalidInput, i, v)
		}
		sum += v
	}
	if math.Abs(sum-oldTotal) > sumTolerance*math.Max(1, math.Abs(oldTotal)) {
		return nil, fmt.Errorf("%w: old total %v does not match row sum %v", ErrInvalidInput, oldTotal, sum)
	}

	if oldTotal == 0 {
		return nil, ErrUndefinedRedistribution
	}

	updates := make([]Update[R], 0, len(rows))
	for _, row := range rows {
		share := value(row) / oldTotal
		updates = append(updates, Update[R]{Row: row, Value: int64(math.Round(newTotal * share))})
	}
	return updates, nil
}

// EvenSplit assigns newTotal across rows in equal parts, handing the
// remainder out one unit at a time from the first row. It is the fallback a
// caller may choose after ErrUndefinedRedistribution; Proportional never
// applies it on its own.
func EvenSplit[R any](rows []R, newTotal int64) ([]Update[R], error) {
	if newTotal < 0 {
		return nil, fmt.Errorf("%w: new total %d", ErrInvalidInput, newTotal)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidInput)
	}

	n := int64(len(rows))
	base, rem := newTotal/n, newTotal%n
	updates := make([]Update[R], 0, len(rows))
	for i, row := range rows {
		v := base
		if int64(i) < rem {
			v++
		}
		updates = append(updates, Update[R]{Row: row, Value: v})
	}
	return updates, nil
}

// Sum adds up the values of a set of updates.
func Sum[R any](updates []Update[R]) int64 {
	var total int64
	for _, u := range updates {
		total += u.Value
	}
	return total
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
