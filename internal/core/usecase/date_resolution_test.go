package usecase

import (
	"testing"
	"time"
)

type fixedTaggerFake struct {
	spans []string
}

func (f fixedTaggerFake) DateEntities(string) []string { return f.spans }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePrefersTaggedEntityOverEarlierText(t *testing.T) {
	text := "Printed 2020-01-05\nInvoice Date: 2023-04-01"
	resolver := NewDateResolver(fixedTaggerFake{spans: []string{"2023-04-01"}})

	got := resolver.Resolve(text)
	if got == nil || !got.Equal(day(2023, 4, 1)) {
		t.Fatalf("expected tagged date, got %v", got)
	}
}

func TestResolveScansInsideTaggedSpan(t *testing.T) {
	resolver := NewDateResolver(fixedTaggerFake{spans: []string{"due on March 5th, 2021 at noon"}})

	got := resolver.Resolve("due on March 5th, 2021 at noon")
	if got == nil || !got.Equal(day(2021, 3, 5)) {
		t.Fatalf("expected 2021-03-05, got %v", got)
	}
}

func TestResolveFallsBackToFullTextScan(t *testing.T) {
	resolver := NewDateResolver(fixedTaggerFake{spans: []string{"yesterday"}})

	got := resolver.Resolve("Receipt\nissued 2019-11-30 and paid 2019-12-02")
	if got == nil || !got.Equal(day(2019, 11, 30)) {
		t.Fatalf("expected first date in text, got %v", got)
	}
}

func TestResolveReturnsNilWithoutDates(t *testing.T) {
	resolver := NewDateResolver(nil)

	if got := resolver.Resolve("no dates in here, order 12345"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := resolver.Resolve("   "); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestParseDateCandidate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "2023-04-01", want: day(2023, 4, 1), ok: true},
		{in: "04/01/2023", want: day(2023, 4, 1), ok: true},
		{in: "March 5th, 2021", want: day(2021, 3, 5), ok: true},
		{in: "Oct. 7, 2020", want: day(2020, 10, 7), ok: true},
		{in: "1850-01-01", ok: false},
		{in: "not a date", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseDateCandidate(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseDateCandidate(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("ParseDateCandidate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
