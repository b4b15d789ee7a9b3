// Package checkpoint is Checkpoint & Resume (I): it resumes an interrupted
// run from the last completed step using previously written artifacts,
// grounded on this codebase's pkg/escalation.Manager's lifecycle-tracking
// pattern (in-memory map keyed by ID, clock-injected) generalized from
// escalation intents to run step progress.
package checkpoint

import (
	"time"

	"github.com/runforge/corectl/pkg/runstate"
)

// StepStatus is a single step's completion state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Steps is the fixed happy-path step sequence a run progresses through,
// mirroring runstate's happy-path states one-for-one.
var Steps = []string{"triage", "plan", "resolve", "review", "apply"}

// stepState mirrors between the runstate name and a Steps entry.
var stepState = map[string]runstate.State{
	"triage":  runstate.Triaged,
	"plan":    runstate.Planned,
	"resolve": runstate.Resolving,
	"review":  runstate.Review,
	"apply":   runstate.Applying,
}

// Checkpoint is the §4.8 data model.
type Checkpoint struct {
	RunID            string
	TenantID         string
	CurrentStepIndex int
	CurrentStepName  string
	Status           StepStatus
	CompletedSteps   []string
	FailedStepID     string
	Artifacts        map[string]any
	CheckpointedAt   time.Time
	Reason           string
}

// RunView is the minimal run projection analyzeResumePoint needs.
type RunView struct {
	State     runstate.State
	Terminal  bool
	Artifacts map[string]any
}

// Options modifies resume-point analysis.
type Options struct {
	ForceRestart      bool
	SkipToStep        string
	SuppliedArtifacts map[string]any
}

// ResumePoint is analyzeResumePoint's result.
type ResumePoint struct {
	Success            bool
	Reason             string
	StartFromStep      string
	StartFromIndex     int
	AvailableArtifacts map[string]any
}

func stepIndex(name string) int {
	for i, s := range Steps {
		if s == name {
			return i
		}
	}
	return -1
}

// isSkippable reports whether step appears in completed; the checkpoint's
// CurrentStepIndex is not consulted.
func isSkippable(step string, completed []string) bool {
	for _, c := range completed {
		if c == step {
			return true
		}
	}
	return false
}

// mergeArtifacts merges b into a, last-writer-wins (b overrides a).
func mergeArtifacts(a, b map[string]any) map[string]any {
	merged := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// AnalyzeResumePoint implements §4.8's analyzeResumePoint.
func AnalyzeResumePoint(run RunView, cp *Checkpoint, opts Options) ResumePoint {
	if opts.ForceRestart {
		return ResumePoint{
			Success:            true,
			StartFromStep:      Steps[0],
			StartFromIndex:     0,
			AvailableArtifacts: mergeArtifacts(nil, opts.SuppliedArtifacts),
		}
	}

	if run.Terminal {
		return ResumePoint{Success: false, Reason: "run is terminal, cannot resume"}
	}

	if opts.SkipToStep != "" {
		idx := stepIndex(opts.SkipToStep)
		if idx < 0 {
			return ResumePoint{Success: false, Reason: "unknown step: " + opts.SkipToStep}
		}
		artifacts := map[string]any{}
		if cp != nil {
			for _, name := range Steps[:idx] {
				if isSkippable(name, cp.CompletedSteps) {
					if v, ok := cp.Artifacts[name]; ok {
						artifacts[name] = v
					}
				}
			}
		}
		return ResumePoint{
			Success:            true,
			StartFromStep:      opts.SkipToStep,
			StartFromIndex:     idx,
			AvailableArtifacts: mergeArtifacts(artifacts, run.Artifacts),
		}
	}

	if cp != nil {
		artifacts := mergeArtifacts(cp.Artifacts, run.Artifacts)
		return ResumePoint{
			Success:            true,
			StartFromStep:      cp.CurrentStepName,
			StartFromIndex:     cp.CurrentStepIndex,
			AvailableArtifacts: artifacts,
		}
	}

	// No checkpoint: find the first non-completed step from the run's
	// current state and collect outputs of all prior completed steps.
	artifacts := map[string]any{}
	for i, name := range Steps {
		target := stepState[name]
		if run.State == target || runstate.Progress(run.State) < runstate.Progress(target) {
			return ResumePoint{
				Success:            true,
				StartFromStep:      name,
				StartFromIndex:     i,
				AvailableArtifacts: mergeArtifacts(artifacts, run.Artifacts),
			}
		}
		if v, ok := run.Artifacts[name]; ok {
			artifacts[name] = v
		}
	}
	// Every step already passed; resume at the last one.
	last := len(Steps) - 1
	return ResumePoint{
		Success:            true,
		StartFromStep:      Steps[last],
		StartFromIndex:     last,
		AvailableArtifacts: mergeArtifacts(artifacts, run.Artifacts),
	}
}
