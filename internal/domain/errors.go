package domain

import "fmt"

// FetchError aborts a single execution of a source. The scheduler still
// re-arms the source for its next period.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch candidates from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EnrichmentError reports a failure enriching one article.
type EnrichmentError struct {
	Source string
	URL    string
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %s article %s: %v", e.Source, e.URL, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// CategorizationError reports a categorizer failure for one article.
type CategorizationError struct {
	Title string
	Err   error
}

func (e *CategorizationError) Error() string {
	return fmt.Sprintf("categorize %q: %v", e.Title, e.Err)
}

func (e *CategorizationError) Unwrap() error { return e.Err }

// StoreError reports a failed write to one sink.
type StoreError struct {
	Sink string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("write to %s sink: %v", e.Sink, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
