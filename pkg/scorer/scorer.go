// Package scorer is the Complexity Scorer (M): a pure, deterministic
// function from change features to a 1..10 risk score, an optional LLM
// adjustment clamped to [-2,+2], and a lighter local-triage path for
// non-PR workspaces. Grounded on this codebase's pkg/kernel scoring-style
// pure functions (deterministic, side-effect-free transforms over a
// features struct) — the teacher has no direct analogue, so the additive
// contribution shape here follows spec §4.10 literally, composed in the
// teacher's plain-function, no-framework style.
package scorer

// Features is the §3.8 data model driving calculateBaselineScore.
type Features struct {
	NumFiles           int
	NumHunks           int
	TotalConflictLines int
	TotalAdditions     int
	TotalDeletions     int
	FileTypes          []string
	HasSecurityFiles   bool
	HasInfraFiles      bool
	HasConfigFiles     bool
	HasTestFiles       bool
	HasConflictMarkers bool
	MaxHunksPerFile     int
	AvgHunksPerFile     float64
}

// BaselineResult is calculateBaselineScore's output.
type BaselineResult struct {
	Score     int
	Reasons   []string
	Breakdown map[string]int
}

// CalculateBaselineScore is pure and deterministic: identical features
// always yield an identical result (spec property 7).
func CalculateBaselineScore(f Features) BaselineResult {
	breakdown := map[string]int{}
	reasons := []string{}

	add := func(key string, points int, reason string) {
		if points == 0 {
			return
		}
		breakdown[key] = points
		reasons = append(reasons, reason)
	}

	switch {
	case f.NumFiles > 20:
		add("files", 3, "touches more than 20 files")
	case f.NumFiles > 10:
		add("files", 2, "touches more than 10 files")
	case f.NumFiles > 3:
		add("files", 1, "touches more than 3 files")
	}

	switch {
	case f.NumHunks > 30:
		add("hunks", 3, "more than 30 hunks")
	case f.NumHunks > 15:
		add("hunks", 2, "more than 15 hunks")
	case f.NumHunks > 5:
		add("hunks", 1, "more than 5 hunks")
	}

	if f.TotalConflictLines > 0 {
		switch {
		case f.TotalConflictLines > 100:
			add("conflict_lines", 3, "more than 100 conflicting lines")
		case f.TotalConflictLines > 30:
			add("conflict_lines", 2, "more than 30 conflicting lines")
		default:
			add("conflict_lines", 1, "has conflicting lines")
		}
	}

	churn := f.TotalAdditions + f.TotalDeletions
	switch {
	case churn > 500:
		add("churn", 2, "large churn (>500 lines changed)")
	case churn > 150:
		add("churn", 1, "moderate churn (>150 lines changed)")
	}

	if f.HasSecurityFiles {
		add("security_files", 2, "touches security-sensitive files")
	}
	if f.HasInfraFiles {
		add("infra_files", 1, "touches infrastructure files")
	}
	if f.HasConfigFiles {
		add("config_files", 1, "touches configuration files")
	}
	if f.HasTestFiles {
		add("test_files", -1, "includes test coverage")
	}
	if f.HasConflictMarkers {
		add("conflict_markers", 2, "unresolved conflict markers present")
	}

	switch {
	case f.MaxHunksPerFile > 10:
		add("max_hunks_per_file", 1, "a single file has more than 10 hunks")
	}

	sum := 1
	for _, v := range breakdown {
		sum += v
	}
	score := clamp(sum, 1, 10)

	return BaselineResult{Score: score, Reasons: reasons, Breakdown: breakdown}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ValidateAdjustment clamps an LLM-proposed adjustment to [-2,+2].
func ValidateAdjustment(n int) int {
	return clamp(n, -2, 2)
}

// ApplyAdjustment returns the clamped sum of baseline and a validated
// adjustment, always landing in 1..10 (spec property 8).
func ApplyAdjustment(baseline, adjustment int) int {
	return clamp(baseline+ValidateAdjustment(adjustment), 1, 10)
}

// Adjustment carries an optional LLM-proposed score nudge.
type Adjustment struct {
	Value       int
	Reasons     []string
	Explanation string
}

// CombinedResult is combinedScore's output.
type CombinedResult struct {
	BaselineScore int
	LLMAdjustment int
	FinalScore    int
	Reasons       struct {
		Baseline []string
		LLM      []string
	}
}

// CombinedScore merges a baseline result with an optional adjustment.
func CombinedScore(baseline int, baselineReasons []string, adj *Adjustment) CombinedResult {
	result := CombinedResult{BaselineScore: baseline, FinalScore: baseline}
	result.Reasons.Baseline = baselineReasons
	if adj == nil {
		return result
	}
	validated := ValidateAdjustment(adj.Value)
	result.LLMAdjustment = validated
	result.FinalScore = ApplyAdjustment(baseline, validated)
	result.Reasons.LLM = adj.Reasons
	return result
}

// RiskBand is the local-triage risk classification.
type RiskBand string

const (
	RiskLow      RiskBand = "low"
	RiskMedium   RiskBand = "medium"
	RiskHigh     RiskBand = "high"
	RiskCritical RiskBand = "critical"
)

// RiskBandFor maps a 1..10 score to its risk band.
func RiskBandFor(score int) RiskBand {
	switch {
	case score <= 2:
		return RiskLow
	case score <= 5:
		return RiskMedium
	case score <= 7:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// FileRisk is the §3.8 per-file risk classification, highest-risk wins
// when a file matches more than one category.
type FileRisk string

const (
	FileRiskSecrets       FileRisk = "secrets"
	FileRiskAuth          FileRisk = "auth"
	FileRiskFinancial     FileRisk = "financial"
	FileRiskInfrastructure FileRisk = "infrastructure"
	FileRiskConfig        FileRisk = "config"
	FileRiskTest          FileRisk = "test"
	FileRiskSafe          FileRisk = "safe"
)

// riskPrecedence orders categories from highest to lowest risk so the
// classifier can always report the highest-risk match.
var riskPrecedence = []FileRisk{
	FileRiskSecrets, FileRiskAuth, FileRiskFinancial,
	FileRiskInfrastructure, FileRiskConfig, FileRiskTest, FileRiskSafe,
}

// riskScore gives each band its local-triage point contribution.
var riskScore = map[FileRisk]int{
	FileRiskSecrets:        4,
	FileRiskAuth:           3,
	FileRiskFinancial:      3,
	FileRiskInfrastructure: 2,
	FileRiskConfig:         1,
	FileRiskTest:           0,
	FileRiskSafe:           0,
}

// LocalTriageResult is the non-PR-workspace lighter scoring path's output.
type LocalTriageResult struct {
	Score int
	Band  RiskBand
}

// ClassifyFileRisks classifies each path and returns the highest-risk
// category it matches, for the local-triage path to aggregate.
func ClassifyFileRisks(paths []string, classify func(path string) []FileRisk) []FileRisk {
	risks := make([]FileRisk, 0, len(paths))
	for _, p := range paths {
		matches := classify(p)
		risks = append(risks, highestRisk(matches))
	}
	return risks
}

func highestRisk(matches []FileRisk) FileRisk {
	for _, candidate := range riskPrecedence {
		for _, m := range matches {
			if m == candidate {
				return candidate
			}
		}
	}
	return FileRiskSafe
}

// LocalTriage aggregates per-file risk into a deterministic 1..10 score
// and risk band for non-PR workspaces.
func LocalTriage(risks []FileRisk) LocalTriageResult {
	sum := 1
	for _, r := range risks {
		sum += riskScore[r]
	}
	score := clamp(sum, 1, 10)
	return LocalTriageResult{Score: score, Band: RiskBandFor(score)}
}
