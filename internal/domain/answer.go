package domain

// Source is a citation backing part of an answer.
type Source struct {
	Title string
	URL   string
}

// Answer is the raw output of the index facade. Sources preserve retrieval
// order and may contain duplicates; deduplication is the formatter's job.
type Answer struct {
	Text    string
	Sources []Source
}

// Document is one indexable record produced by an ingestion job and consumed
// by the facade's rebuild operation.
type Document struct {
	Title string
	URL   string
	Text  string
}

// OutboundAnswer is built once per answered question and handed to exactly
// one platform adapter for delivery.
type OutboundAnswer struct {
	ConversationID      string
	ThreadID            string
	Text                string
	WithFeedbackButtons bool
}
