package motion

// Source names which text field produced a cached embedding.
type Source string

const (
	SourcePrompt      Source = "prompt"
	SourceDescription Source = "description"
	SourceNone        Source = ""
)

// Entry is one row of the motion corpus. Embedding may be nil when the row
// has never been embedded or its cached vector went stale.
type Entry struct {
	Index           int
	Description     string
	Prompt          string
	Embedding       []float64
	EmbeddingSource Source
}

// PreferredSource picks the text field an embedding should be computed from:
// prompt when present, otherwise description.
func (e Entry) PreferredSource() Source {
	if e.Prompt != "" {
		return SourcePrompt
	}
	if e.Description != "" {
		return SourceDescription
	}
	return SourceNone
}

// PreferredText returns the text matching PreferredSource.
func (e Entry) PreferredText() string {
	switch e.PreferredSource() {
	case SourcePrompt:
		return e.Prompt
	case SourceDescription:
		return e.Description
	default:
		return ""
	}
}

// EmbeddingValid reports whether the cached vector may be used for matching.
// A vector computed from a text source that would no longer be chosen is
// stale and must not be served.
func (e Entry) EmbeddingValid() bool {
	return len(e.Embedding) > 0 && e.EmbeddingSource == e.PreferredSource() && e.EmbeddingSource != SourceNone
}
