package domain

// InsightKind tags the variant held by an Insight.
type InsightKind string

const (
	InsightAbsent     InsightKind = "absent"
	InsightPlainText  InsightKind = "plain_text"
	InsightStructured InsightKind = "structured"
	InsightFailed     InsightKind = "failed"
)

// Insight is the AI commentary attached to a search. Exactly the fields of
// its Kind are meaningful.
type Insight struct {
	Kind InsightKind `json:"kind"`

	// PlainText
	Text string `json:"text,omitempty"`

	// Structured
	Attributes              []string `json:"attributes,omitempty"`
	RefinedQuery            string   `json:"refined_query,omitempty"`
	Summary                 string   `json:"summary,omitempty"`
	ComplementaryCategories []string `json:"complementary_categories,omitempty"`

	// Failed
	Message string `json:"message,omitempty"`
}

// AbsentInsight returns the empty variant.
func AbsentInsight() Insight { return Insight{Kind: InsightAbsent} }

// PlainTextInsight returns a free-text insight.
func PlainTextInsight(text string) Insight {
	return Insight{Kind: InsightPlainText, Text: text}
}

// FailedInsight carries a user-facing failure message.
func FailedInsight(message string) Insight {
	return Insight{Kind: InsightFailed, Message: message}
}

// StructuredInsight builds the structured variant.
func StructuredInsight(attrs []string, refinedQuery, summary string, complementary []string) Insight {
	return Insight{
		Kind:                    InsightStructured,
		Attributes:              attrs,
		RefinedQuery:            refinedQuery,
		Summary:                 summary,
		ComplementaryCategories: complementary,
	}
}

// IsAbsent reports whether there is nothing to show. The zero Insight is absent.
func (i Insight) IsAbsent() bool {
	return i.Kind == "" || i.Kind == InsightAbsent
}
