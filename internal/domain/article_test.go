package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Go 1.22 Released":     "go 1.22 released",
		"  go 1.22 released ":  "go 1.22 released",
		"GO\t1.22\n  RELEASED": "go 1.22 released",
		"":                     "",
		"   ":                  "",
	}

	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDedupKeyMatchesAcrossCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := Article{Title: "Go 1.22 Released"}
	b := Article{Title: "go 1.22 released "}
	if a.DedupKey() != b.DedupKey() {
		t.Fatalf("expected equal keys, got %q and %q", a.DedupKey(), b.DedupKey())
	}
}

func TestSourceJobConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (SourceJobConfig{InitialDelay: time.Second, Period: time.Minute}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := (SourceJobConfig{Period: 0}).Validate()
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}

	if err := (SourceJobConfig{InitialDelay: -time.Second, Period: time.Minute}).Validate(); err == nil {
		t.Fatalf("expected negative delay to be rejected")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	var fetchErr *FetchError
	wrapped := error(&FetchError{Source: "arxiv", Err: cause})
	if !errors.As(wrapped, &fetchErr) || !errors.Is(wrapped, cause) {
		t.Fatalf("fetch error does not unwrap: %v", wrapped)
	}

	var storeErr *StoreError
	wrapped = &StoreError{Sink: "cache", Err: cause}
	if !errors.As(wrapped, &storeErr) || storeErr.Sink != "cache" {
		t.Fatalf("store error does not unwrap: %v", wrapped)
	}
}
