// Package runstate is the run control plane's state machine (C): the
// lookup table of legal transitions plus progress scoring over the
// longest happy path.
package runstate

import (
	"fmt"

	"github.com/runforge/corectl/pkg/corerr"
)

// State is one stage of a run's lifecycle.
type State string

const (
	Queued            State = "queued"
	Triaged           State = "triaged"
	Planned           State = "planned"
	Resolving         State = "resolving"
	Review            State = "review"
	AwaitingApproval  State = "awaiting_approval"
	Applying          State = "applying"
	Done              State = "done"
	Aborted           State = "aborted"
	Failed            State = "failed"
)

// transitions is the forward-only lookup table §4.2 defines.
var transitions = map[State]map[State]bool{
	Queued:           setOf(Triaged, Failed, Aborted),
	Triaged:          setOf(Planned, Failed, Aborted),
	Planned:          setOf(Resolving, Failed, Aborted),
	Resolving:        setOf(Review, Failed, Aborted),
	Review:           setOf(AwaitingApproval, Resolving, Failed, Aborted),
	AwaitingApproval: setOf(Applying, Aborted, Failed),
	Applying:         setOf(Done, Failed, Aborted),
	Done:             {},
	Aborted:          {},
	Failed:           {},
}

// happyPathIndex gives each state's position on the longest path from
// queued, used by Progress. review/resolving can cycle (review→resolving)
// but that cycle never increases progress below the further state already
// reached by the caller's own bookkeeping — Progress is a pure function of
// the current state, not of history.
var happyPathIndex = map[State]int{
	Queued:           0,
	Triaged:          1,
	Planned:          2,
	Resolving:        3,
	Review:           4,
	AwaitingApproval: 5,
	Applying:         6,
	Done:             7,
	Aborted:          7,
	Failed:           7,
}

const happyPathLength = 7 // steps from queued (0) to applying (6), done is the 7th

func setOf(states ...State) map[State]bool {
	m := make(map[State]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// Terminal reports whether s has no outgoing transitions.
func Terminal(s State) bool {
	return s == Done || s == Aborted || s == Failed
}

// IsValid reports whether to is a legal transition target from.
func IsValid(from, to State) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Validate returns a Validation-kind error naming the attempted edge when
// the transition is illegal, nil otherwise.
func Validate(from, to State, runID string) error {
	if IsValid(from, to) {
		return nil
	}
	return corerr.New(corerr.KindValidation, "run.invalid_transition",
		fmt.Sprintf("invalid state transition for run %s: %s -> %s", runID, from, to))
}

// Progress returns 0..100 for the longest happy path from queued to state;
// terminal states are always 100.
func Progress(s State) int {
	if Terminal(s) {
		return 100
	}
	idx, ok := happyPathIndex[s]
	if !ok {
		return 0
	}
	return idx * 100 / happyPathLength
}
