// Package derive computes display metrics from raw server tallies.
package derive

import (
	"math"
	"math/big"
	"sort"
	"strings"
)

// MaxPrecision is the largest number of decimal places Percentages
// supports.
const MaxPrecision = 6

// Tally is one named raw counter, such as the total points staked on an
// outcome.
type Tally struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// Share is a Tally's normalized portion of 100. Units counts
// 10^-precision percent, so the Units of one result always add up to
// exactly 100*10^precision (or zero).
type Share struct {
	Label   string  `json:"label" yaml:"label"`
	Units   int64   `json:"units" yaml:"units"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// Percentages converts values into shares that sum to exactly 100 at the
// given precision (decimal places, clamped to [0, MaxPrecision]).
//
// Each share is floored, then the units lost to flooring are handed out
// one at a time to the entries with the largest remainders, earlier
// entries winning ties. If every value is zero the result is all zeros.
// Negative, NaN and infinite values count as zero.
func Percentages(values []Tally, precision int) []Share {
	precision = clampPrecision(precision)
	out := make([]Share, len(values))
	for i, v := range values {
		out[i].Label = v.Label
	}

	raws := make([]*big.Rat, len(values))
	total := new(big.Rat)
	for i, v := range values {
		raws[i] = ratOf(v.Value)
		total.Add(total, raws[i])
	}
	if total.Sign() == 0 {
		return out
	}

	scale := pow10(precision + 2)
	budget := scale
	remainders := make([]*big.Rat, len(values))

	for i, r := range raws {
		// exact = r * scale / total
		exact := new(big.Rat).Mul(r, new(big.Rat).SetInt64(scale))
		exact.Quo(exact, total)

		floor := new(big.Int).Quo(exact.Num(), exact.Denom())
		out[i].Units = floor.Int64()
		budget -= out[i].Units

		remainders[i] = new(big.Rat).Sub(exact, new(big.Rat).SetInt(floor))
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].Cmp(remainders[order[b]]) > 0
	})
	for k := 0; budget > 0 && k < len(order); k++ {
		out[order[k]].Units++
		budget--
	}

	unit := float64(pow10(precision))
	for i := range out {
		out[i].Percent = float64(out[i].Units) / unit
	}
	return out
}

// Consensus returns the yes and no percentages from shares, matching labels
// case-insensitively. A missing label yields 0.
func Consensus(shares []Share, yesLabel, noLabel string) (yes, no float64) {
	for _, s := range shares {
		switch {
		case strings.EqualFold(s.Label, yesLabel):
			yes = s.Percent
		case strings.EqualFold(s.Label, noLabel):
			no = s.Percent
		}
	}
	return yes, no
}

// SumUnits adds up the Units of shares.
func SumUnits(shares []Share) int64 {
	var n int64
	for _, s := range shares {
		n += s.Units
	}
	return n
}

func ratOf(v float64) *big.Rat {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFloat64(v)
}

func clampPrecision(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxPrecision {
		return MaxPrecision
	}
	return p
}

func pow10(n int) int64 {
	v := int64(1)
	for range n {
		v *= 10
	}
	return v
}
