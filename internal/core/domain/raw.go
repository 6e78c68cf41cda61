package domain

// RawItem is one search hit as returned by a source adapter, before
// content extraction and chunking.
type RawItem struct {
	// ID is the upstream identifier (paper id, video id, or URL).
	ID string

	// Source is the adapter that produced this item.
	Source Source

	// Title is the human-readable title.
	Title string

	// URL is the canonical location of the item.
	URL string

	// Summary is the short-form text (snippet, abstract, description).
	Summary string

	// Payload is the source-specific metadata carried into every passage.
	Payload Payload

	// ContentURL is where full content lives when it differs from URL
	// (for example an open access PDF).
	ContentURL string

	// Fallback is text to use when full content cannot be extracted.
	Fallback string
}

// SummaryText renders the one-paragraph summary passage for an item.
// Label names the summary field ("Snippet", "Abstract", "Description").
func (r RawItem) SummaryText(label string) string {
	text := "Title: " + r.Title
	if r.Summary != "" {
		text += "\n\n" + label + ": " + r.Summary
	}
	if p, ok := r.Payload.(ScholarPayload); ok && p.TLDR != "" {
		text += "\n\nTL;DR: " + p.TLDR
	}
	return text
}

// SearchParams are the per-call parameters every adapter accepts.
// Adapters ignore fields that do not apply to them.
type SearchParams struct {
	// Keywords is the free-text query.
	Keywords string

	// MaxResults caps the number of items returned.
	MaxResults int

	// Language is an ISO 639-1 code (default "en").
	Language string

	// DaysBack limits results to recently published items.
	DaysBack int

	// YearStart and YearEnd bound publication years for papers.
	YearStart int
	YearEnd   int
}
