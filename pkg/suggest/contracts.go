package suggest

import (
	"context"
	"sort"

	"github.com/suggestkit/suggestkit/pkg/annotate"
)

// ModelInput is the tensor-free contract handed to the external scoring
// model: the selected conversation tail, oldest first.
type ModelInput struct {
	// Context is the text of the selected messages.
	Context []string

	// UserIDs are the author ids, aligned with Context.
	UserIDs []int

	// TimeDiffs are inter-message gaps in seconds, floored at zero; 0 when
	// reference times are unknown.
	TimeDiffs []float64

	// NumSuggestions is the requested number of reply suggestions.
	NumSuggestions int
}

// ScoredReply is one reply suggestion from the scoring model.
type ScoredReply struct {
	Text  string
	Score float64
}

// ModelOutput carries the scoring model's outputs. Nil pointer or nil slice
// means the model does not produce that output slot.
type ModelOutput struct {
	TriggeringScore  *float64
	SensitivityScore *float64

	// Replies are scored smart-reply candidates.
	Replies []ScoredReply

	// ClassScores are per-action-class scores, aligned with the model
	// definition's action class list.
	ClassScores []float64
}

// Scorer is the external suggestion model. Implementations run synchronously
// to completion or fail outright; the engine never retries.
type Scorer interface {
	Score(ctx context.Context, input ModelInput) (*ModelOutput, error)
}

// Ranker filters and reorders the suggestion list in place. An error means
// ranking was impossible and the whole action list must be discarded.
type Ranker interface {
	Rank(ctx context.Context, response *Response) error
}

// Annotator produces annotations for a message text. It is consulted only
// when a message carries no precomputed annotations.
type Annotator interface {
	Annotate(ctx context.Context, text string) ([]annotate.Annotation, error)
}

// scoreRanker is the default Ranker: stable sort by descending score, then
// optional equivalence deduplication keeping the higher-scored (earlier)
// action.
type scoreRanker struct {
	deduplicate bool
}

// NewScoreRanker returns the default score-ordering ranker.
func NewScoreRanker(deduplicate bool) Ranker {
	return &scoreRanker{deduplicate: deduplicate}
}

func (r *scoreRanker) Rank(_ context.Context, response *Response) error {
	sort.SliceStable(response.Actions, func(i, j int) bool {
		return response.Actions[i].Score > response.Actions[j].Score
	})
	if !r.deduplicate {
		return nil
	}
	deduplicated := response.Actions[:0:0]
	for _, candidate := range response.Actions {
		if !isAnyActionEquivalent(candidate, deduplicated) {
			deduplicated = append(deduplicated, candidate)
		}
	}
	response.Actions = deduplicated
	return nil
}

func isAnyActionEquivalent(action Action, actions []Action) bool {
	for i := range actions {
		if isEquivalentAction(action, actions[i]) {
			return true
		}
	}
	return false
}

func isEquivalentAction(action, other Action) bool {
	if action.Type != other.Type ||
		action.ResponseText != other.ResponseText ||
		string(action.EntityData) != string(other.EntityData) ||
		len(action.Annotations) != len(other.Annotations) {
		return false
	}
	for i := range action.Annotations {
		if !isEquivalentAnnotation(action.Annotations[i], other.Annotations[i]) {
			return false
		}
	}
	return true
}

func isEquivalentAnnotation(annotation, other ActionAnnotation) bool {
	return annotation.MessageIndex == other.MessageIndex &&
		annotation.Span == other.Span &&
		annotation.Name == other.Name &&
		annotation.Entity.Collection == other.Entity.Collection
}
