//go:build property
// +build property

package scorer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCalculateBaselineScoreDeterminism checks spec property 7: identical
// features always yield an identical result. Grounded on this codebase's
// pkg/kernel addenda property tests (same gopter.DefaultTestParameters +
// prop.ForAll shape), narrowed to scorer's feature struct.
func TestCalculateBaselineScoreDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("baseline scoring is deterministic", prop.ForAll(
		func(numFiles, numHunks, conflictLines, additions, deletions int) bool {
			f := Features{
				NumFiles:           numFiles % 200,
				NumHunks:           numHunks % 200,
				TotalConflictLines: conflictLines % 500,
				TotalAdditions:     additions % 5000,
				TotalDeletions:     deletions % 5000,
			}
			r1 := CalculateBaselineScore(f)
			r2 := CalculateBaselineScore(f)
			return r1.Score == r2.Score && len(r1.Reasons) == len(r2.Reasons)
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestCalculateBaselineScoreBounded checks the score never leaves the
// 1..10 range the spec's scale defines, for any feature combination.
func TestCalculateBaselineScoreBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("baseline score stays within [1,10]", prop.ForAll(
		func(numFiles, numHunks, conflictLines, additions, deletions int, hasSecurity bool) bool {
			f := Features{
				NumFiles:           numFiles % 200,
				NumHunks:           numHunks % 200,
				TotalConflictLines: conflictLines % 500,
				TotalAdditions:     additions % 5000,
				TotalDeletions:     deletions % 5000,
				HasSecurityFiles:   hasSecurity,
			}
			r := CalculateBaselineScore(f)
			return r.Score >= 1 && r.Score <= 10
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestApplyAdjustmentMonotonicInAdjustment verifies a larger raw LLM
// adjustment never produces a smaller final score, for a fixed baseline.
func TestApplyAdjustmentMonotonicInAdjustment(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("applying a larger adjustment never lowers the final score", prop.ForAll(
		func(baseline, low, delta int) bool {
			baseline = 1 + (baseline % 10)
			low = low % 5
			high := low + (delta % 5)
			if high < low {
				low, high = high, low
			}
			return ApplyAdjustment(baseline, high) >= ApplyAdjustment(baseline, low)
		},
		gen.IntRange(0, 1000),
		gen.IntRange(-10, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
