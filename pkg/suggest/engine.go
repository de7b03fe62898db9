package suggest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/suggestkit/suggestkit/pkg/annotate"
	"github.com/suggestkit/suggestkit/pkg/dynrecord"
	"github.com/suggestkit/suggestkit/pkg/localematch"
)

var tracer = otel.Tracer("suggestkit/engine")

// defaultMatchTimeout bounds a single regex evaluation so a pathological
// pattern cannot stall a request.
const defaultMatchTimeout = 2 * time.Second

// Engine is a compiled suggestion model. Construction is single-threaded and
// all-or-nothing; a returned Engine is immutable and safe for concurrent use.
type Engine struct {
	def *Definition

	localeMatcher *localematch.Matcher

	rules              []compiledRule
	lowConfidenceRules []compiledRule

	annotationMappings     []compiledMapping
	deduplicateAnnotations bool

	entityBuilder *dynrecord.Builder

	scorer    Scorer
	ranker    Ranker
	annotator Annotator

	logger  *zap.Logger
	metrics *Metrics

	matchTimeout time.Duration
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the structured logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithScorer attaches the external scoring model. Without one, the model pass
// is skipped entirely.
func WithScorer(scorer Scorer) Option {
	return func(e *Engine) { e.scorer = scorer }
}

// WithRanker replaces the default score ranker.
func WithRanker(ranker Ranker) Option {
	return func(e *Engine) { e.ranker = ranker }
}

// WithAnnotator attaches an external annotator, overriding the model's
// built-in dictionary annotator.
func WithAnnotator(annotator Annotator) Option {
	return func(e *Engine) { e.annotator = annotator }
}

// WithMatchTimeout bounds individual regex evaluations.
func WithMatchTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.matchTimeout = timeout }
}

// NewEngine compiles a verified model definition into an Engine. Any
// compilation failure is fatal: there is no partially initialized engine.
func NewEngine(def *Definition, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, ErrNoModel
	}
	// Definitions built in code get the same structural verification as
	// loaded ones; construction is the last point a bad model can surface.
	if err := def.verify(); err != nil {
		return nil, err
	}
	e := &Engine{
		def:          def,
		logger:       zap.NewNop(),
		matchTimeout: defaultMatchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = NewMetrics()

	supported, err := localematch.ParseList(def.Locales)
	if err != nil {
		return nil, fmt.Errorf("%w: supported locales: %v", ErrBadModel, err)
	}
	e.localeMatcher = localematch.NewMatcher(supported, localematch.MatcherConfig{
		HandleUnknownAsSupported: def.Preconditions.HandleUnknownLocaleAsSupported,
		HandleMissingAsSupported: def.Preconditions.HandleMissingLocaleAsSupported,
	})

	if e.rules, err = compileRules(def.Rules, e.matchTimeout); err != nil {
		return nil, err
	}
	if e.lowConfidenceRules, err = compileRules(def.LowConfidenceRules, e.matchTimeout); err != nil {
		return nil, err
	}

	if e.annotationMappings, err = compileAnnotationMappings(def.AnnotationActions); err != nil {
		return nil, err
	}
	if def.AnnotationActions != nil {
		e.deduplicateAnnotations = def.AnnotationActions.Deduplicate
	}

	if def.EntitySchema != nil {
		schema, err := def.EntitySchema.build()
		if err != nil {
			return nil, fmt.Errorf("%w: entity schema: %v", ErrBadModel, err)
		}
		e.entityBuilder = dynrecord.NewBuilder(schema)
	}

	if e.annotator == nil && len(def.Dictionary) > 0 {
		entries := make([]annotate.DictionaryEntry, 0, len(def.Dictionary))
		for _, d := range def.Dictionary {
			entries = append(entries, annotate.DictionaryEntry{
				Phrase:     d.Phrase,
				Collection: d.Collection,
				Score:      d.Score,
			})
		}
		annotator, err := annotate.NewDictionaryAnnotator(entries, e.logger.Named("dictionary"))
		if err != nil {
			return nil, fmt.Errorf("%w: dictionary: %v", ErrBadModel, err)
		}
		e.annotator = annotator
	}

	if e.ranker == nil {
		e.ranker = NewScoreRanker(def.Ranking.Deduplicate)
	}

	e.logger.Info("suggestion engine initialized",
		zap.Int("rules", len(e.rules)),
		zap.Int("low_confidence_rules", len(e.lowConfidenceRules)),
		zap.Int("annotation_mappings", len(e.annotationMappings)),
		zap.Bool("has_scorer", e.scorer != nil),
		zap.Bool("has_annotator", e.annotator != nil),
	)
	return e, nil
}

// NewEngineFromBytes loads, verifies and compiles a model from an in-memory
// YAML document.
func NewEngineFromBytes(buf []byte, opts ...Option) (*Engine, error) {
	def, err := LoadDefinition(buf)
	if err != nil {
		return nil, err
	}
	return NewEngine(def, opts...)
}

// NewEngineFromPath loads, verifies and compiles a model file.
func NewEngineFromPath(path string, opts ...Option) (*Engine, error) {
	def, err := LoadDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(def, opts...)
}

// SuggestActions runs the full gating pipeline over a conversation. The
// returned Response always carries the filter flags, even when empty, so a
// caller can tell "nothing found" from "suppressed by policy". A non-nil
// error means the request was aborted and no actions are returned.
func (e *Engine) SuggestActions(ctx context.Context, conversation *Conversation) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "SuggestActions", trace.WithAttributes(
		attribute.String("request.id", requestID),
	))
	defer span.End()
	defer func() {
		e.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()
	logger := e.logger.With(zap.String("request_id", requestID))

	response, err := e.suggest(ctx, logger, conversation)
	if err != nil {
		e.metrics.RequestsTotal.WithLabelValues("error").Inc()
		logger.Error("suggestion request aborted", zap.Error(err))
		return nil, err
	}
	e.metrics.RequestsTotal.WithLabelValues("ok").Inc()
	return response, nil
}

func (e *Engine) suggest(ctx context.Context, logger *zap.Logger, conversation *Conversation) (*Response, error) {
	response := newResponse()
	if conversation == nil || len(conversation.Messages) == 0 {
		return response, nil
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("conversation.messages", len(conversation.Messages)))

	numMessages := len(conversation.Messages)
	if limit := e.def.MaxConversationHistoryLength; limit >= 0 && numMessages > limit {
		numMessages = limit
	}
	if numMessages <= 0 {
		return nil, ErrNoMessages
	}
	selected := conversation.Messages[len(conversation.Messages)-numMessages:]

	before := len(response.Actions)
	e.suggestFromAnnotations(ctx, conversation, response)
	e.metrics.ActionsTotal.WithLabelValues("annotation").Add(float64(len(response.Actions) - before))

	if !e.inputLengthOK(selected) {
		e.metrics.SuppressionsTotal.WithLabelValues("input_length").Inc()
		logger.Info("input length outside model bounds, stopping")
		return e.rank(ctx, response)
	}

	if !e.localeFractionOK(selected) {
		response.FilteredLocaleMismatch = true
		e.metrics.SuppressionsTotal.WithLabelValues("locale").Inc()
		logger.Info("locale match fraction below threshold, stopping")
		return e.rank(ctx, response)
	}

	if e.def.Preconditions.SuppressOnLowConfidenceInput {
		low, err := e.isLowConfidenceInput(conversation, numMessages)
		if err != nil {
			return nil, err
		}
		if low {
			response.FilteredLowConfidence = true
			e.metrics.SuppressionsTotal.WithLabelValues("low_confidence").Inc()
			logger.Info("low-confidence input, stopping")
			return e.rank(ctx, response)
		}
	}

	if e.scorer != nil {
		suppressed, err := e.suggestFromModel(ctx, selected, response)
		if err != nil {
			return nil, err
		}
		if suppressed {
			e.metrics.SuppressionsTotal.WithLabelValues("sensitive").Inc()
			logger.Info("sensitive topic, suppressing model suggestions")
			return e.rank(ctx, response)
		}
	}

	before = len(response.Actions)
	if err := e.suggestFromRules(conversation, response); err != nil {
		return nil, err
	}
	e.metrics.ActionsTotal.WithLabelValues("rule").Add(float64(len(response.Actions) - before))

	return e.rank(ctx, response)
}

// rank hands the response to the ranker. A ranker failure discards every
// gathered action and surfaces as a request error.
func (e *Engine) rank(ctx context.Context, response *Response) (*Response, error) {
	if err := e.ranker.Rank(ctx, response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRanking, err)
	}
	return response, nil
}

// suggestFromModel runs the scoring model over the selected messages and
// converts its output into actions. It reports whether the sensitivity gate
// suppressed the model's suggestions.
func (e *Engine) suggestFromModel(ctx context.Context, selected []Message, response *Response) (bool, error) {
	input := ModelInput{
		Context:        make([]string, 0, len(selected)),
		UserIDs:        make([]int, 0, len(selected)),
		TimeDiffs:      timeDiffs(selected),
		NumSuggestions: e.def.NumSmartReplies,
	}
	for _, m := range selected {
		input.Context = append(input.Context, m.Text)
		input.UserIDs = append(input.UserIDs, m.UserID)
	}

	output, err := e.scorer.Score(ctx, input)
	if err != nil {
		return false, fmt.Errorf("scoring model: %w", err)
	}
	if output == nil {
		return false, nil
	}

	if output.TriggeringScore != nil {
		response.TriggeringScore = *output.TriggeringScore
	}
	if output.SensitivityScore != nil {
		response.SensitivityScore = *output.SensitivityScore
	}

	pre := e.def.Preconditions
	if pre.SuppressOnSensitiveTopic && output.SensitivityScore != nil &&
		*output.SensitivityScore > pre.MaxSensitiveTopicScore {
		response.FilteredSensitivity = true
		return true, nil
	}

	repliesAllowed := true
	if output.TriggeringScore != nil && *output.TriggeringScore < pre.MinSmartReplyTriggeringScore {
		response.FilteredMinTriggeringScore = true
		repliesAllowed = false
	}

	before := len(response.Actions)
	if repliesAllowed {
		for _, reply := range output.Replies {
			if reply.Text == "" {
				continue
			}
			response.Actions = append(response.Actions, Action{
				ResponseText: reply.Text,
				Type:         e.def.SmartReplyActionType,
				Score:        reply.Score,
			})
		}
	}
	for i, score := range output.ClassScores {
		if i >= len(e.def.ActionClasses) {
			break
		}
		class := e.def.ActionClasses[i]
		if !class.Enabled || score < class.MinTriggeringScore {
			continue
		}
		response.Actions = append(response.Actions, Action{
			Type:  class.Name,
			Score: score,
		})
	}
	e.metrics.ActionsTotal.WithLabelValues("model").Add(float64(len(response.Actions) - before))
	return false, nil
}

// inputLengthOK checks the total byte length of the selected message texts
// against the model's bounds. A max of zero or below means unbounded above.
func (e *Engine) inputLengthOK(selected []Message) bool {
	total := 0
	for _, m := range selected {
		total += len(m.Text)
	}
	pre := e.def.Preconditions
	if total < pre.MinInputLength {
		return false
	}
	if pre.MaxInputLength > 0 && total > pre.MaxInputLength {
		return false
	}
	return true
}

// localeFractionOK checks that enough of the selected messages carry a
// supported locale. Unparseable locale lists count as unsupported.
func (e *Engine) localeFractionOK(selected []Message) bool {
	if e.def.Preconditions.MinLocaleMatchFraction <= 0 {
		return true
	}
	matched := 0
	for _, m := range selected {
		locales, err := localematch.ParseList(m.Locales)
		if err != nil {
			continue
		}
		if e.localeMatcher.IsAnySupported(locales) {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(selected))
	return fraction >= e.def.Preconditions.MinLocaleMatchFraction
}

// timeDiffs derives per-message time deltas in seconds, floored at zero.
// Messages without a reference time contribute zero.
func timeDiffs(selected []Message) []float64 {
	diffs := make([]float64, len(selected))
	for i := 1; i < len(selected); i++ {
		prev, cur := selected[i-1].ReferenceTimeMs, selected[i].ReferenceTimeMs
		if prev == 0 || cur == 0 || cur <= prev {
			continue
		}
		diffs[i] = float64(cur-prev) / 1000
	}
	return diffs
}
