package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScorerGoldenS7 exercises scenario S7: a fixed feature set yields a
// fixed score, bit-for-bit reproducible across repeated calls.
func TestScorerGoldenS7(t *testing.T) {
	features := Features{
		NumFiles:           5,
		NumHunks:           10,
		TotalConflictLines: 150,
		TotalAdditions:     100,
		TotalDeletions:     50,
		HasSecurityFiles:   false,
		HasConflictMarkers: true,
	}

	first := CalculateBaselineScore(features)
	for i := 0; i < 10; i++ {
		repeat := CalculateBaselineScore(features)
		require.Equal(t, first.Score, repeat.Score, "nondeterministic score on iteration %d", i)
		require.Len(t, repeat.Reasons, len(first.Reasons), "nondeterministic reasons on iteration %d", i)
	}

	assert.GreaterOrEqual(t, first.Score, 1)
	assert.LessOrEqual(t, first.Score, 10)
	assert.NotZero(t, first.Breakdown["conflict_lines"], "expected conflict_lines to contribute given 150 conflict lines")
	assert.NotZero(t, first.Breakdown["conflict_markers"], "expected conflict_markers to contribute given HasConflictMarkers=true")
}

func TestAdjustmentBoundedness(t *testing.T) {
	cases := []struct{ baseline, adj int }{
		{1, -5}, {1, 5}, {10, -5}, {10, 5}, {5, 1}, {5, -1},
	}
	for _, tc := range cases {
		result := ApplyAdjustment(tc.baseline, tc.adj)
		require.GreaterOrEqual(t, result, 1, "ApplyAdjustment(%d,%d) out of range", tc.baseline, tc.adj)
		require.LessOrEqual(t, result, 10, "ApplyAdjustment(%d,%d) out of range", tc.baseline, tc.adj)
		diff := result - tc.baseline
		assert.LessOrEqual(t, diff, 2, "ApplyAdjustment(%d,%d) diff exceeds +2", tc.baseline, tc.adj)
		assert.GreaterOrEqual(t, diff, -2, "ApplyAdjustment(%d,%d) diff exceeds -2", tc.baseline, tc.adj)
	}
}

func TestValidateAdjustmentClamps(t *testing.T) {
	assert.Equal(t, 2, ValidateAdjustment(10), "expected clamp to +2")
	assert.Equal(t, -2, ValidateAdjustment(-10), "expected clamp to -2")
	assert.Equal(t, 1, ValidateAdjustment(1), "expected 1 unchanged")
}

func TestCombinedScoreWithoutAdjustment(t *testing.T) {
	result := CombinedScore(5, []string{"base reason"}, nil)
	assert.Equal(t, 5, result.FinalScore)
	assert.Equal(t, 0, result.LLMAdjustment)
}

func TestCombinedScoreWithAdjustment(t *testing.T) {
	result := CombinedScore(5, []string{"base reason"}, &Adjustment{Value: 10, Reasons: []string{"risky pattern"}})
	assert.Equal(t, 2, result.LLMAdjustment, "expected adjustment clamped to 2")
	assert.Equal(t, 7, result.FinalScore)
}

func TestRiskBandBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  RiskBand
	}{
		{1, RiskLow}, {2, RiskLow}, {3, RiskMedium}, {5, RiskMedium},
		{6, RiskHigh}, {7, RiskHigh}, {8, RiskCritical}, {10, RiskCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RiskBandFor(tc.score), "RiskBandFor(%d)", tc.score)
	}
}

func TestHighestRiskWins(t *testing.T) {
	risks := []FileRisk{FileRiskConfig, FileRiskSecrets, FileRiskTest}
	assert.Equal(t, FileRiskSecrets, highestRisk(risks), "expected secrets to win")
}

func TestLocalTriageDeterministic(t *testing.T) {
	risks := []FileRisk{FileRiskSecrets, FileRiskConfig, FileRiskSafe}
	first := LocalTriage(risks)
	second := LocalTriage(risks)
	assert.Equal(t, first, second, "expected deterministic local triage")
}
