package swarm

import (
	"sync"

	"github.com/corpcraft/swarmengine/pkg/boundedset"
	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

const processedEventsCap = 2000

// Complexity is the Task Analyzer's classification of a task's effort.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityCompound Complexity = "compound"
	ComplexityComplex  Complexity = "complex"
)

// AnalysisResult is the heuristic or LLM-derived assessment of a task.
type AnalysisResult struct {
	Complexity             Complexity
	SuggestedDecomposition []string
	SuggestedAgents        []string
	EstimatedTokens        int64
	Reasoning              string
}

// LLMAnalyzer is the optional capability an Analyzer may fall back from on
// failure. Nil means heuristic-only.
type LLMAnalyzer interface {
	Analyze(intent string, tags []string) (AnalysisResult, error)
}

// Analyzer subscribes to TASK_POSTED and emits TASK_ANALYZED.
type Analyzer struct {
	bus    *bus.Bus
	llm    LLMAnalyzer
	logger zerolog.Logger

	mu        sync.Mutex
	processed *boundedset.Set
}

// NewAnalyzer creates a TaskAnalyzer. llm may be nil.
func NewAnalyzer(b *bus.Bus, llm LLMAnalyzer) *Analyzer {
	a := &Analyzer{
		bus:       b,
		llm:       llm,
		logger:    log.WithComponent("analyzer"),
		processed: boundedset.New(processedEventsCap),
	}
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, a.handle)
	return a
}

func (a *Analyzer) handle(event *types.Event) error {
	if event.ParentEventID != "" {
		return nil
	}
	if _, isRetry := event.Payload["retry_of"]; isRetry {
		return nil
	}

	a.mu.Lock()
	if a.processed.Contains(event.EventID) {
		a.mu.Unlock()
		return nil
	}
	a.processed.Add(event.EventID)
	a.mu.Unlock()

	result, err := a.analyze(event)
	if err != nil {
		a.logger.Warn().Err(err).Str("event_id", event.EventID).Msg("LLM analysis failed, falling back to heuristic")
		result = heuristicAnalyze(event)
	}

	_, err = a.bus.Publish(&types.Event{
		Topic:         types.TopicTaskAnalyzed,
		ParentEventID: event.EventID,
		Payload: map[string]any{
			"event_id":                event.EventID,
			"complexity":              string(result.Complexity),
			"suggested_decomposition": result.SuggestedDecomposition,
			"suggested_agents":        result.SuggestedAgents,
			"estimated_tokens":        result.EstimatedTokens,
			"reasoning":               result.Reasoning,
		},
	})
	return err
}

func (a *Analyzer) analyze(event *types.Event) (AnalysisResult, error) {
	if a.llm == nil {
		return heuristicAnalyze(event), nil
	}
	return a.llm.Analyze(event.Intent, event.RequiredTags)
}

// heuristicAnalyze classifies complexity from the tag count alone, with no
// external calls; the intent text is not scanned for keywords.
func heuristicAnalyze(event *types.Event) AnalysisResult {
	tagCount := len(event.RequiredTags)

	var complexity Complexity
	switch {
	case tagCount >= 3:
		complexity = ComplexityComplex
	case tagCount == 2:
		complexity = ComplexityCompound
	default:
		complexity = ComplexitySimple
	}

	estimate := int64(500 + tagCount*400)

	return AnalysisResult{
		Complexity:             complexity,
		SuggestedDecomposition: event.RequiredTags,
		SuggestedAgents:        event.RequiredTags,
		EstimatedTokens:        estimate,
		Reasoning:              "heuristic: tag-count based complexity classification",
	}
}
