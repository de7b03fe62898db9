package suggest

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/suggestkit/suggestkit/pkg/annotate"
)

// compiledMapping is an annotation mapping with its static payload decoded.
type compiledMapping struct {
	def        AnnotationMapping
	entityData []byte
}

func compileAnnotationMappings(spec *AnnotationActionsSpec) ([]compiledMapping, error) {
	if spec == nil {
		return nil, nil
	}
	mappings := make([]compiledMapping, 0, len(spec.Mappings))
	for _, def := range spec.Mappings {
		m := compiledMapping{def: def}
		if def.EntityData != "" {
			decoded, err := base64.StdEncoding.DecodeString(def.EntityData)
			if err != nil {
				return nil, fmt.Errorf("%w: annotation mapping for %q: %v", ErrBadModel, def.Collection, err)
			}
			m.entityData = decoded
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// annotatedSpan is one annotation of the last message reduced to its top
// classification.
type annotatedSpan struct {
	span       annotate.Span
	collection string
	score      float64
	text       string
}

// suggestFromAnnotations maps entity annotations of the last message onto
// actions through the model's mapping table. Precomputed annotations on the
// message take precedence; the engine's annotator is a fallback, not a
// supplement. Annotator failures only skip this source.
func (e *Engine) suggestFromAnnotations(ctx context.Context, conversation *Conversation, response *Response) {
	if len(e.annotationMappings) == 0 {
		return
	}
	messageIndex := len(conversation.Messages) - 1
	message := &conversation.Messages[messageIndex]

	annotations := message.Annotations
	if len(annotations) == 0 && e.annotator != nil {
		var err error
		annotations, err = e.annotator.Annotate(ctx, message.Text)
		if err != nil {
			e.logger.Warn("annotator failed, skipping annotation suggestions", zap.Error(err))
			return
		}
	}
	if len(annotations) == 0 {
		return
	}

	spans := make([]annotatedSpan, 0, len(annotations))
	for _, a := range annotations {
		top, ok := a.TopClassification()
		if !ok {
			continue
		}
		if a.Span.Begin < 0 || a.Span.End > len(message.Text) || a.Span.Begin >= a.Span.End {
			continue
		}
		spans = append(spans, annotatedSpan{
			span:       a.Span,
			collection: top.Collection,
			score:      top.Score,
			text:       message.Text[a.Span.Begin:a.Span.End],
		})
	}

	if e.deduplicateAnnotations {
		spans = deduplicateSpans(spans)
	}

	for _, s := range spans {
		for i := range e.annotationMappings {
			m := &e.annotationMappings[i]
			if m.def.Collection != s.collection {
				continue
			}
			if s.score < m.def.MinAnnotationScore {
				continue
			}
			score := m.def.Score
			if m.def.UseAnnotationScore {
				score = s.score
			}
			response.Actions = append(response.Actions, Action{
				Type:  m.def.ActionType,
				Score: score,
				Annotations: []ActionAnnotation{{
					MessageIndex: messageIndex,
					Span:         s.span,
					Entity:       annotate.ClassificationResult{Collection: s.collection, Score: s.score},
					Name:         s.collection,
					Text:         s.text,
				}},
				EntityData: m.entityData,
			})
		}
	}
}

// deduplicateSpans collapses annotations that share (collection, text). A
// strictly higher score replaces the kept one; ties keep the first seen.
// Output order is sorted by (collection, text) so dedup never depends on
// input order.
func deduplicateSpans(spans []annotatedSpan) []annotatedSpan {
	type key struct {
		collection string
		text       string
	}
	kept := make(map[key]annotatedSpan, len(spans))
	for _, s := range spans {
		k := key{collection: s.collection, text: s.text}
		if prev, ok := kept[k]; ok && s.score <= prev.score {
			continue
		}
		kept[k] = s
	}
	out := make([]annotatedSpan, 0, len(kept))
	for _, s := range kept {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].collection != out[j].collection {
			return out[i].collection < out[j].collection
		}
		return out[i].text < out[j].text
	})
	return out
}
