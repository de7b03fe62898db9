package suggest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/multierr"

	"github.com/suggestkit/suggestkit/pkg/dynrecord"
)

// compiledRule pairs an immutable rule definition with its compiled matcher.
// Built once at initialization, never mutated afterwards; regexp2 match
// cursors are per-call values, so concurrent requests never share state.
type compiledRule struct {
	def RuleDef
	re  *regexp2.Regexp

	// staticEntityData holds the decoded static payload per action spec,
	// aligned with def.Actions.
	staticEntityData [][]byte

	// hasEntityData is true when any action spec declares a static payload
	// or capturing-group mappings.
	hasEntityData bool
}

// compileRules compiles every rule pattern, inflating compressed patterns
// first. Any failure is fatal: no partial rule sets exist.
func compileRules(defs []RuleDef, matchTimeout time.Duration) ([]compiledRule, error) {
	var errs error
	rules := make([]compiledRule, 0, len(defs))
	for _, def := range defs {
		pattern := def.Pattern
		if def.CompressedPattern != "" {
			inflated, err := inflatePattern(def.CompressedPattern)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: rule %q: %v", ErrRuleCompile, def.Name, err))
				continue
			}
			pattern = inflated
		}

		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: rule %q: %v", ErrRuleCompile, def.Name, err))
			continue
		}
		re.MatchTimeout = matchTimeout

		rule := compiledRule{def: def, re: re, staticEntityData: make([][]byte, len(def.Actions))}
		for i, action := range def.Actions {
			if action.EntityData != "" {
				decoded, err := base64.StdEncoding.DecodeString(action.EntityData)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%w: rule %q: entity data: %v", ErrRuleCompile, def.Name, err))
					continue
				}
				rule.staticEntityData[i] = decoded
			}
			if action.EntityData != "" || len(action.CapturingGroups) > 0 {
				rule.hasEntityData = true
			}
		}
		rules = append(rules, rule)
	}
	if errs != nil {
		return nil, errs
	}
	return rules, nil
}

func inflatePattern(encoded string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding compressed pattern: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("opening compressed pattern: %w", err)
	}
	defer zr.Close()
	inflated, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("inflating pattern: %w", err)
	}
	return string(inflated), nil
}

// suggestFromRules appends one action per (match x action spec) over the last
// message's text. A matcher error or a failed capturing-group extraction
// aborts the whole pass; partial entity data is never emitted.
func (e *Engine) suggestFromRules(conversation *Conversation, response *Response) error {
	message := conversation.Messages[len(conversation.Messages)-1].Text
	for i := range e.rules {
		rule := &e.rules[i]
		match, err := rule.re.FindStringMatch(message)
		if err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrRuleMatch, rule.def.Name, err)
		}
		for match != nil {
			for ai := range rule.def.Actions {
				action := &rule.def.Actions[ai]
				var entityData []byte
				if rule.hasEntityData {
					record := e.entityBuilder.NewRoot()
					if static := rule.staticEntityData[ai]; len(static) > 0 {
						if err := record.MergeFromSerialized(static); err != nil {
							return fmt.Errorf("%w: rule %q: static entity data: %v", ErrRuleMatch, rule.def.Name, err)
						}
					}
					for _, group := range action.CapturingGroups {
						if err := setFieldFromCapturingGroup(match, group, record); err != nil {
							return fmt.Errorf("%w: rule %q: %v", ErrRuleMatch, rule.def.Name, err)
						}
					}
					entityData = record.Serialize()
				}
				response.Actions = append(response.Actions, Action{
					ResponseText: action.ResponseText,
					Type:         action.Type,
					Score:        action.Score,
					EntityData:   entityData,
				})
			}
			match, err = rule.re.FindNextMatch(match)
			if err != nil {
				return fmt.Errorf("%w: rule %q: %v", ErrRuleMatch, rule.def.Name, err)
			}
		}
	}
	return nil
}

// setFieldFromCapturingGroup writes one matched group into the entity record.
// A group that did not participate in the match leaves the field unset; an
// unknown group index or field path is an extraction failure.
func setFieldFromCapturingGroup(match *regexp2.Match, group CapturingGroupDef, record *dynrecord.Record) error {
	g := match.GroupByNumber(group.Group)
	if g == nil {
		return fmt.Errorf("capturing group %d does not exist", group.Group)
	}
	if len(g.Captures) == 0 || g.Length == 0 {
		return nil
	}
	return record.SetPath(group.Field, g.String())
}

// isLowConfidenceInput reports whether any low-confidence rule matches any of
// the selected trailing messages.
func (e *Engine) isLowConfidenceInput(conversation *Conversation, numMessages int) (bool, error) {
	for i := 1; i <= numMessages; i++ {
		message := conversation.Messages[len(conversation.Messages)-i].Text
		for j := range e.lowConfidenceRules {
			rule := &e.lowConfidenceRules[j]
			match, err := rule.re.FindStringMatch(message)
			if err != nil {
				return false, fmt.Errorf("%w: low-confidence rule %q: %v", ErrRuleMatch, rule.def.Name, err)
			}
			if match != nil {
				return true, nil
			}
		}
	}
	return false, nil
}
