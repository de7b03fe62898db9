// Package suggest predicts actionable suggestions (replies, calendar events,
// calls, ...) for short message conversations. It combines three sources: an
// external scoring model, a compiled regular-expression rule set, and
// annotation-driven entity mapping, sequenced behind a set of precondition
// gates. An Engine is built once from a model definition and is safe for
// concurrent use afterwards.
package suggest

import (
	"github.com/suggestkit/suggestkit/pkg/annotate"
)

// Well-known action type tags, aligned with the platform conversation-action
// taxonomy.
const (
	ActionTypeViewCalendar  = "view_calendar"
	ActionTypeViewMap       = "view_map"
	ActionTypeTrackFlight   = "track_flight"
	ActionTypeOpenURL       = "open_url"
	ActionTypeSendSMS       = "send_sms"
	ActionTypeCallPhone     = "call_phone"
	ActionTypeSendEmail     = "send_email"
	ActionTypeShareLocation = "share_location"
)

// Message is one immutable conversation message. It is owned by the caller
// and never mutated by this package.
type Message struct {
	// Text is the raw UTF-8 message text.
	Text string

	// UserID distinguishes the author from other conversation participants.
	UserID int

	// ReferenceTimeMs is the message time in milliseconds UTC; 0 means
	// unknown.
	ReferenceTimeMs int64

	// Locales is a comma-separated list of BCP 47 tags for the text.
	Locales string

	// Annotations are precomputed entity spans for Text, if any. When empty,
	// the engine's annotator (if configured) is consulted instead.
	Annotations []annotate.Annotation
}

// Conversation is the ordered message context of one suggestion request,
// oldest first.
type Conversation struct {
	Messages []Message
}

// ActionAnnotation ties an action back to the annotation it came from.
type ActionAnnotation struct {
	// MessageIndex is the index of the referenced message, -1 when the action
	// does not reference a particular message.
	MessageIndex int

	// Span is the referenced byte range within the message.
	Span annotate.Span

	// Entity is the classification that produced the action.
	Entity annotate.ClassificationResult

	// Name is the annotation's collection name.
	Name string

	// Text is the annotated substring.
	Text string
}

// Action is a single suggested action.
type Action struct {
	// ResponseText is the suggested reply text; empty for non-reply actions.
	ResponseText string

	// Type is the action type tag, e.g. "view_calendar".
	Type string

	// Score is the suggestion confidence.
	Score float64

	// Annotations are the source annotations, if the action was derived from
	// any.
	Annotations []ActionAnnotation

	// EntityData is the serialized structured entity payload in the model
	// schema's wire format; empty when the action carries no entity data.
	EntityData []byte
}

// Response is the result of one suggestion request. The filter flags are
// always populated, so callers can tell "nothing found" from "suppressed by
// policy" even when Actions is empty.
type Response struct {
	// SensitivityScore and TriggeringScore are the model's assessments;
	// -1 when the model produced no such output.
	SensitivityScore float64
	TriggeringScore  float64

	// FilteredSensitivity is set when suggestions were suppressed because the
	// conversation was deemed sensitive.
	FilteredSensitivity bool

	// FilteredMinTriggeringScore is set when smart replies were suppressed by
	// the triggering score threshold.
	FilteredMinTriggeringScore bool

	// FilteredLocaleMismatch is set when too few messages matched the model's
	// supported locales.
	FilteredLocaleMismatch bool

	// FilteredLowConfidence is set when a low-confidence rule matched the
	// input.
	FilteredLowConfidence bool

	// Actions is the ranked list of suggested actions.
	Actions []Action
}

func newResponse() *Response {
	return &Response{SensitivityScore: -1, TriggeringScore: -1}
}
