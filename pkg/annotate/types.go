// Package annotate defines text span annotations and a trie-backed dictionary
// annotator. Annotations mark a byte span of a message with ranked entity
// classifications (dates, addresses, phone numbers, ...), either precomputed
// by an external annotator or produced on demand.
package annotate

// Well-known classification collection names.
const (
	CollectionOther          = "other"
	CollectionPhone          = "phone"
	CollectionAddress        = "address"
	CollectionDate           = "date"
	CollectionURL            = "url"
	CollectionFlight         = "flight"
	CollectionEmail          = "email"
	CollectionIBAN           = "iban"
	CollectionPaymentCard    = "payment_card"
	CollectionISBN           = "isbn"
	CollectionTrackingNumber = "tracking_number"
	CollectionContact        = "contact"
)

// ClassificationResult is one ranked interpretation of an annotated span.
type ClassificationResult struct {
	// Collection names the entity class, e.g. "date" or "phone".
	Collection string

	// Score is the annotator's confidence in this classification.
	Score float64
}

// Span is a half-open byte-offset range [Begin, End) into a message's text.
type Span struct {
	Begin int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Begin }

// Annotation is a classified span of text. Classifications are ranked best
// first; an annotation with no classifications carries no usable signal.
type Annotation struct {
	Span            Span
	Classifications []ClassificationResult
}

// TopClassification returns the best-ranked classification, if any.
func (a Annotation) TopClassification() (ClassificationResult, bool) {
	if len(a.Classifications) == 0 {
		return ClassificationResult{}, false
	}
	return a.Classifications[0], true
}
