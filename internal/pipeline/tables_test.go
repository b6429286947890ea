package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	s, err := ParseState("EXECUTING")
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, s)

	_, err = ParseState("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Complex")
	require.NoError(t, err)
	assert.Equal(t, ModeComplex, m)

	_, err = ParseMode("")
	assert.Error(t, err)

	_, err = ParseMode("medium")
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateIdle.Terminal())
	assert.True(t, StateComplete.Terminal())
	assert.False(t, StateGathering.Terminal())
	assert.False(t, StateExecuting.Terminal())
}

func TestIsSpecialist(t *testing.T) {
	assert.True(t, IsSpecialist("bash-tester"))
	assert.True(t, IsSpecialist("python-reviewer"))
	assert.False(t, IsSpecialist(AgentClassifier))
	assert.False(t, IsSpecialist(AgentGatherer))
	assert.False(t, IsSpecialist("docs-gatherer"))
	assert.False(t, IsSpecialist(""))
}

func TestPermitted_Idle(t *testing.T) {
	set := Permitted(StateIdle, ModeNone)

	assert.True(t, set.Allows(AgentClassifier))
	assert.True(t, set.Allows(AgentGatherer))
	assert.False(t, set.Allows("bash-tester"))
	assert.False(t, set.Allows(AgentRefiner))
}

func TestPermitted_ClassifiedRoutesByMode(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		allowed    []string
		notAllowed []string
	}{
		{
			name:       "trivial routes to specialists",
			mode:       ModeTrivial,
			allowed:    []string{"bash-tester", AgentOrchestrator},
			notAllowed: []string{AgentGatherer, AgentRefiner},
		},
		{
			name:       "moderate must gather",
			mode:       ModeModerate,
			allowed:    []string{AgentGatherer},
			notAllowed: []string{"bash-tester", AgentRefiner},
		},
		{
			name:       "complex must gather",
			mode:       ModeComplex,
			allowed:    []string{AgentGatherer},
			notAllowed: []string{"bash-tester", AgentOrchestrator},
		},
		{
			name:       "exploratory must gather",
			mode:       ModeExploratory,
			allowed:    []string{AgentGatherer},
			notAllowed: []string{"bash-tester"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := Permitted(StateClassified, tt.mode)
			for _, a := range tt.allowed {
				assert.True(t, set.Allows(a), "expected %s allowed", a)
			}
			for _, a := range tt.notAllowed {
				assert.False(t, set.Allows(a), "expected %s blocked", a)
			}
		})
	}
}

func TestPermitted_GatheringAdmitsSubGatherers(t *testing.T) {
	set := Permitted(StateGathering, ModeComplex)

	assert.True(t, set.Allows(AgentGatherer))
	assert.True(t, set.Allows("repo-history-gatherer"))
	assert.True(t, set.Allows("web-search-gatherer"))
	assert.False(t, set.Allows("bash-tester"))
	assert.False(t, set.Allows(AgentOrchestrator))
}

func TestPermitted_ExecutingAdmitsAnySpecialist(t *testing.T) {
	set := Permitted(StateExecuting, ModeTrivial)

	assert.True(t, set.Allows("bash-tester"))
	assert.True(t, set.Allows("sql-migrator"))
	assert.True(t, set.Allows(AgentOrchestrator))
	assert.False(t, set.Allows(AgentGatherer))
	assert.False(t, set.Allows(AgentClassifier))
}

func TestPermitted_CompleteOnlyGatherer(t *testing.T) {
	set := Permitted(StateComplete, ModeComplex)

	assert.True(t, set.Allows(AgentGatherer))
	assert.False(t, set.Allows("bash-tester"))
	assert.False(t, set.Allows(AgentClassifier))
}

func TestNextStates_FullChain(t *testing.T) {
	// Complex traverses all six states in order.
	order := []State{
		StateIdle, StateClassified, StateGathering, StateRefining,
		StateOrchestrating, StateExecuting, StateComplete,
	}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, CanTransition(order[i], order[i+1], ModeComplex),
			"%s -> %s should be legal for complex", order[i], order[i+1])
	}
}

func TestNextStates_TrivialSkipsToExecuting(t *testing.T) {
	assert.True(t, CanTransition(StateClassified, StateExecuting, ModeTrivial))
	assert.False(t, CanTransition(StateClassified, StateGathering, ModeTrivial))
	assert.False(t, CanTransition(StateClassified, StateExecuting, ModeComplex))
}

func TestNextStates_ModerateSkipsRefinement(t *testing.T) {
	assert.True(t, CanTransition(StateClassified, StateGathering, ModeModerate))
	assert.True(t, CanTransition(StateGathering, StateExecuting, ModeModerate))
	assert.False(t, CanTransition(StateGathering, StateRefining, ModeModerate))
	assert.False(t, CanTransition(StateGathering, StateExecuting, ModeComplex))
}

func TestNextStates_CompleteRestarts(t *testing.T) {
	assert.True(t, CanTransition(StateComplete, StateIdle, ModeComplex))
	assert.True(t, CanTransition(StateComplete, StateClassified, ModeComplex))
	assert.False(t, CanTransition(StateComplete, StateExecuting, ModeComplex))
}

func TestNextStates_NoSkipping(t *testing.T) {
	assert.False(t, CanTransition(StateIdle, StateExecuting, ModeTrivial))
	assert.False(t, CanTransition(StateGathering, StateOrchestrating, ModeComplex))
	assert.False(t, CanTransition(StateRefining, StateExecuting, ModeComplex))
}

func TestDescribe(t *testing.T) {
	set := Permitted(StateExecuting, ModeTrivial)
	desc := set.Describe()
	assert.Contains(t, desc, AgentOrchestrator)
	assert.Contains(t, desc, "any domain specialist")

	assert.Equal(t, "classified", DescribeNext(StateIdle, ModeNone))
}
