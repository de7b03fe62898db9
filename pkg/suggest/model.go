package suggest

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"

	"github.com/suggestkit/suggestkit/pkg/dynrecord"
	"github.com/suggestkit/suggestkit/pkg/localematch"
)

// Definition is the engine's one-time-load model document. It is declarative
// configuration only; NewEngine compiles it into executable form.
type Definition struct {
	// Locales is the comma-separated list of locales the model supports.
	// "*" components act as wildcards.
	Locales string `koanf:"locales"`

	// SmartReplyActionType is the action type tag used for model reply
	// suggestions.
	SmartReplyActionType string `koanf:"smart_reply_action_type"`

	// NumSmartReplies is the reply count requested from the scoring model.
	NumSmartReplies int `koanf:"num_smart_replies"`

	// MaxConversationHistoryLength clamps how many trailing messages a
	// request considers; negative means no clamp.
	MaxConversationHistoryLength int `koanf:"max_conversation_history_length"`

	Preconditions Preconditions `koanf:"preconditions"`

	// ActionClasses are the scoring model's output classes, in output order.
	ActionClasses []ActionClass `koanf:"action_classes"`

	// Rules are the primary pattern rules.
	Rules []RuleDef `koanf:"rules"`

	// LowConfidenceRules feed only the low-confidence input gate.
	LowConfidenceRules []RuleDef `koanf:"low_confidence_rules"`

	// AnnotationActions maps annotation collections to actions; nil disables
	// the annotation pass.
	AnnotationActions *AnnotationActionsSpec `koanf:"annotation_actions"`

	// EntitySchema declares the structured entity payload types.
	EntitySchema *EntitySchemaDef `koanf:"entity_schema"`

	// Dictionary backs the built-in trie annotator; empty disables it.
	Dictionary []DictionaryEntryDef `koanf:"dictionary"`

	Ranking RankingOptions `koanf:"ranking"`
}

// Preconditions are the gates that can suppress suggestion generation.
type Preconditions struct {
	// MinInputLength and MaxInputLength bound the total text length of the
	// selected messages; MaxInputLength <= 0 means unbounded above.
	MinInputLength int `koanf:"min_input_length"`
	MaxInputLength int `koanf:"max_input_length"`

	// MinLocaleMatchFraction is the minimum fraction of selected messages
	// whose locales the model must support.
	MinLocaleMatchFraction float64 `koanf:"min_locale_match_fraction"`

	HandleUnknownLocaleAsSupported bool `koanf:"handle_unknown_locale_as_supported"`
	HandleMissingLocaleAsSupported bool `koanf:"handle_missing_locale_as_supported"`

	// SuppressOnLowConfidenceInput enables the low-confidence rule gate.
	SuppressOnLowConfidenceInput bool `koanf:"suppress_on_low_confidence_input"`

	// SuppressOnSensitiveTopic suppresses suggestions when the sensitivity
	// score exceeds MaxSensitiveTopicScore.
	SuppressOnSensitiveTopic bool    `koanf:"suppress_on_sensitive_topic"`
	MaxSensitiveTopicScore   float64 `koanf:"max_sensitive_topic_score"`

	// MinSmartReplyTriggeringScore gates model reply suggestions.
	MinSmartReplyTriggeringScore float64 `koanf:"min_smart_reply_triggering_score"`
}

// ActionClass is one scoring-model output class.
type ActionClass struct {
	Name               string  `koanf:"name"`
	Enabled            bool    `koanf:"enabled"`
	MinTriggeringScore float64 `koanf:"min_triggering_score"`
}

// RuleDef is a declarative pattern rule. Exactly one of Pattern and
// CompressedPattern must be set; CompressedPattern is base64-encoded zlib.
type RuleDef struct {
	Name              string           `koanf:"name"`
	Pattern           string           `koanf:"pattern"`
	CompressedPattern string           `koanf:"compressed_pattern"`
	Actions           []RuleActionSpec `koanf:"actions"`
}

// RuleActionSpec is one action emitted per rule match.
type RuleActionSpec struct {
	ResponseText string  `koanf:"response_text"`
	Type         string  `koanf:"type"`
	Score        float64 `koanf:"score"`

	// EntityData is a base64-encoded serialized record used as the static
	// seed of the entity payload.
	EntityData string `koanf:"entity_data"`

	// CapturingGroups map regex groups onto entity fields.
	CapturingGroups []CapturingGroupDef `koanf:"capturing_groups"`
}

// CapturingGroupDef maps one regex capturing group to a (possibly dotted)
// entity field path.
type CapturingGroupDef struct {
	Group int    `koanf:"group"`
	Field string `koanf:"field"`
}

// AnnotationActionsSpec configures the annotation-to-action pass.
type AnnotationActionsSpec struct {
	// Deduplicate collapses annotations sharing (collection, text), keeping
	// the higher-scored one.
	Deduplicate bool                `koanf:"deduplicate"`
	Mappings    []AnnotationMapping `koanf:"mappings"`
}

// AnnotationMapping turns annotations of one collection into actions.
type AnnotationMapping struct {
	Collection         string  `koanf:"collection"`
	ActionType         string  `koanf:"action_type"`
	MinAnnotationScore float64 `koanf:"min_annotation_score"`

	// UseAnnotationScore selects the annotation's own score; otherwise Score
	// is used.
	UseAnnotationScore bool    `koanf:"use_annotation_score"`
	Score              float64 `koanf:"score"`

	// EntityData is an optional base64-encoded static payload.
	EntityData string `koanf:"entity_data"`
}

// EntitySchemaDef declares the dynrecord schema for entity payloads.
type EntitySchemaDef struct {
	Root  string          `koanf:"root"`
	Types []EntityTypeDef `koanf:"types"`
}

// EntityTypeDef declares one record type.
type EntityTypeDef struct {
	Name   string           `koanf:"name"`
	Fields []EntityFieldDef `koanf:"fields"`
}

// EntityFieldDef declares one field; Kind is one of bool, int, float, string,
// table.
type EntityFieldDef struct {
	Name  string `koanf:"name"`
	ID    int    `koanf:"id"`
	Kind  string `koanf:"kind"`
	Table string `koanf:"table"`
}

// DictionaryEntryDef is one phrase for the built-in dictionary annotator.
type DictionaryEntryDef struct {
	Phrase     string  `koanf:"phrase"`
	Collection string  `koanf:"collection"`
	Score      float64 `koanf:"score"`
}

// RankingOptions configure the default ranker.
type RankingOptions struct {
	Deduplicate bool `koanf:"deduplicate"`
}

const maxModelSize = 8 * 1024 * 1024

// LoadDefinition parses and verifies a model definition from an in-memory
// YAML buffer. Verification is structural: required sections present,
// locales parseable, schema consistent, payload encodings valid. Pattern
// compilation happens in NewEngine; both must succeed before any engine
// exists.
func LoadDefinition(buf []byte) (*Definition, error) {
	if len(buf) == 0 {
		return nil, ErrNoModel
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(buf), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	def := &Definition{
		NumSmartReplies:              3,
		MaxConversationHistoryLength: -1,
	}
	if err := k.Unmarshal("", def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	if !k.Exists("preconditions") {
		return nil, ErrNoPreconditions
	}
	if err := def.verify(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDefinitionReader reads everything from r and delegates to
// LoadDefinition.
func LoadDefinitionReader(r io.Reader) (*Definition, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxModelSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	if len(buf) > maxModelSize {
		return nil, fmt.Errorf("%w: model exceeds %d bytes", ErrBadModel, maxModelSize)
	}
	return LoadDefinition(buf)
}

// LoadDefinitionFile loads a model definition from a file path with the same
// verification as LoadDefinition.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model file: %w", err)
	}
	defer f.Close()
	return LoadDefinitionReader(f)
}

// verify checks everything that can be checked without compiling patterns.
func (d *Definition) verify() error {
	var errs error

	if _, err := localematch.ParseList(d.Locales); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: supported locales: %v", ErrBadModel, err))
	}

	hasEntityRefs := false
	for _, rule := range append(append([]RuleDef(nil), d.Rules...), d.LowConfidenceRules...) {
		if rule.Pattern == "" && rule.CompressedPattern == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: rule %q has no pattern", ErrBadModel, rule.Name))
		}
		if rule.Pattern != "" && rule.CompressedPattern != "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: rule %q has both plain and compressed patterns", ErrBadModel, rule.Name))
		}
		if rule.CompressedPattern != "" {
			if _, err := base64.StdEncoding.DecodeString(rule.CompressedPattern); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: rule %q compressed pattern is not base64: %v", ErrBadModel, rule.Name, err))
			}
		}
		for _, action := range rule.Actions {
			if action.Type == "" {
				errs = multierr.Append(errs, fmt.Errorf("%w: rule %q has an action without a type", ErrBadModel, rule.Name))
			}
			if action.EntityData != "" || len(action.CapturingGroups) > 0 {
				hasEntityRefs = true
			}
			if action.EntityData != "" {
				if _, err := base64.StdEncoding.DecodeString(action.EntityData); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%w: rule %q entity data is not base64: %v", ErrBadModel, rule.Name, err))
				}
			}
			for _, group := range action.CapturingGroups {
				if group.Group < 0 || group.Field == "" {
					errs = multierr.Append(errs, fmt.Errorf("%w: rule %q has an invalid capturing group mapping", ErrBadModel, rule.Name))
				}
			}
		}
	}

	if d.AnnotationActions != nil {
		for i, mapping := range d.AnnotationActions.Mappings {
			if mapping.Collection == "" || mapping.ActionType == "" {
				errs = multierr.Append(errs, fmt.Errorf("%w: annotation mapping %d lacks collection or action type", ErrBadModel, i))
			}
			if mapping.EntityData != "" {
				if _, err := base64.StdEncoding.DecodeString(mapping.EntityData); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%w: annotation mapping %d entity data is not base64: %v", ErrBadModel, i, err))
				}
			}
		}
	}

	if hasEntityRefs && d.EntitySchema == nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: rules reference entity data but no entity schema is declared", ErrBadModel))
	}
	if d.EntitySchema != nil {
		if _, err := d.EntitySchema.build(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: entity schema: %v", ErrBadModel, err))
		}
	}

	for i, entry := range d.Dictionary {
		if entry.Phrase == "" || entry.Collection == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: dictionary entry %d lacks phrase or collection", ErrBadModel, i))
		}
	}

	return errs
}

// build converts the declarative schema into a dynrecord schema.
func (e *EntitySchemaDef) build() (*dynrecord.Schema, error) {
	defs := make([]dynrecord.TypeDef, 0, len(e.Types))
	for _, typ := range e.Types {
		fields := make([]dynrecord.Field, 0, len(typ.Fields))
		for _, field := range typ.Fields {
			kind, err := dynrecord.ParseKind(field.Kind)
			if err != nil {
				return nil, err
			}
			fields = append(fields, dynrecord.Field{
				Name:  field.Name,
				ID:    field.ID,
				Kind:  kind,
				Table: field.Table,
			})
		}
		defs = append(defs, dynrecord.TypeDef{Name: typ.Name, Fields: fields})
	}
	return dynrecord.NewSchema(e.Root, defs)
}
