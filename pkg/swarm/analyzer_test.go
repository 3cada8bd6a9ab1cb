package swarm

import (
	"errors"
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicAnalyzeClassifiesByTagCount(t *testing.T) {
	simple := heuristicAnalyze(&types.Event{RequiredTags: []string{"data"}})
	assert.Equal(t, ComplexitySimple, simple.Complexity)

	compound := heuristicAnalyze(&types.Event{RequiredTags: []string{"data", "report"}})
	assert.Equal(t, ComplexityCompound, compound.Complexity)

	complex := heuristicAnalyze(&types.Event{RequiredTags: []string{"data", "report", "deploy"}})
	assert.Equal(t, ComplexityComplex, complex.Complexity)
}

type failingLLM struct{}

func (failingLLM) Analyze(intent string, tags []string) (AnalysisResult, error) {
	return AnalysisResult{}, errors.New("llm unreachable")
}

func TestAnalyzerFallsBackToHeuristicOnLLMError(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	NewAnalyzer(b, failingLLM{})

	event, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, RequiredTags: []string{"data", "report"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		results := b.Query(bus.Filter{Topic: topicPtr(types.TopicTaskAnalyzed), ParentEventID: &event.EventID})
		return len(results) == 1
	}, time.Second, 10*time.Millisecond)
}

func topicPtr(t types.Topic) *types.Topic { return &t }
