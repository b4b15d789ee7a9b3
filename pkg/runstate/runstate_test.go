package runstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runforge/corectl/pkg/corerr"
)

func TestValidTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Queued, Triaged, true},
		{Queued, Done, false},
		{Review, AwaitingApproval, true},
		{Review, Resolving, true},
		{AwaitingApproval, Applying, true},
		{Done, Triaged, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsValid(c.from, c.to), "IsValid(%s,%s)", c.from, c.to)
	}
}

func TestValidateReportsAttemptedEdge(t *testing.T) {
	err := Validate(Queued, Done, "run-1")
	require.Error(t, err)
	assert.True(t, corerr.IsKind(err, corerr.KindValidation), "expected validation kind, got %v", err)
	var ce *corerr.Error
	if errors.As(err, &ce) {
		assert.NotEmpty(t, ce.Message, "expected message naming the attempted edge")
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []State{Done, Aborted, Failed} {
		assert.True(t, Terminal(s), "%s should be terminal", s)
		assert.Empty(t, transitions[s], "%s should have no outgoing transitions", s)
	}
}

func TestProgressMonotonicOnHappyPath(t *testing.T) {
	path := []State{Queued, Triaged, Planned, Resolving, Review, AwaitingApproval, Applying, Done}
	last := -1
	for _, s := range path {
		p := Progress(s)
		assert.GreaterOrEqual(t, p, last, "progress decreased at %s", s)
		last = p
	}
	assert.Equal(t, 100, Progress(Done), "terminal state should be 100")
}
