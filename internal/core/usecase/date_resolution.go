package usecase

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/kirillkom/dokeep/internal/core/ports"
)

const monthNamePattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var dateLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`),
	regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b` + monthNamePattern + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNamePattern + `\.?,?\s+\d{4}\b`),
}

var (
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	abbrevDot     = regexp.MustCompile(`([A-Za-z])\.`)
	ofWord        = regexp.MustCompile(`(?i)\s+of\s+`)
)

// Month-first layouts come before day-first ones, matching dateparse.
var explicitDateLayouts = []string{
	"2006-1-2", "2006/1/2", "2006.1.2",
	"1/2/2006", "1-2-2006", "1.2.2006",
	"2/1/2006", "2-1-2006", "2.1.2006",
	"1/2/06", "2/1/06",
}

const (
	minPlausibleYear = 1900
	maxPlausibleYear = 2100
)

type dateMatch struct {
	start int
	end   int
}

// DateResolver applies the two-tier date policy: tagged date entities first,
// then a scan of the whole text. The first parseable candidate wins.
type DateResolver struct {
	tagger ports.DateEntityTagger
}

func NewDateResolver(tagger ports.DateEntityTagger) *DateResolver {
	return &DateResolver{tagger: tagger}
}

// Resolve returns nil when the text carries no usable date.
func (r *DateResolver) Resolve(text string) *time.Time {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if r != nil && r.tagger != nil {
		for _, span := range r.tagger.DateEntities(text) {
			if date, ok := resolveSpan(span); ok {
				return &date
			}
		}
	}
	if date, ok := scanFirstDate(text); ok {
		return &date
	}
	return nil
}

func resolveSpan(span string) (time.Time, bool) {
	span = strings.TrimSpace(span)
	if span == "" {
		return time.Time{}, false
	}
	if date, ok := ParseDateCandidate(span); ok {
		return date, true
	}
	return scanFirstDate(span)
}

func scanFirstDate(text string) (time.Time, bool) {
	for _, m := range findDateLikeSubstrings(text) {
		if date, ok := ParseDateCandidate(text[m.start:m.end]); ok {
			return date, true
		}
	}
	return time.Time{}, false
}

func findDateLikeSubstrings(text string) []dateMatch {
	var matches []dateMatch
	for _, pattern := range dateLikePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, dateMatch{start: loc[0], end: loc[1]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return matches[i].end > matches[j].end
	})
	return matches
}

// ParseDateCandidate parses one date-like string to a UTC calendar day.
func ParseDateCandidate(raw string) (time.Time, bool) {
	candidate := strings.TrimSpace(raw)
	candidate = strings.Trim(candidate, ",;:()[]")
	if candidate == "" {
		return time.Time{}, false
	}
	candidate = ordinalSuffix.ReplaceAllString(candidate, "$1")
	candidate = abbrevDot.ReplaceAllString(candidate, "$1")
	candidate = ofWord.ReplaceAllString(candidate, " ")

	for _, layout := range explicitDateLayouts {
		if parsed, err := time.Parse(layout, candidate); err == nil {
			return plausibleDay(parsed)
		}
	}
	parsed, err := dateparse.ParseIn(candidate, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return plausibleDay(parsed)
}

func plausibleDay(t time.Time) (time.Time, bool) {
	if t.Year() < minPlausibleYear || t.Year() > maxPlausibleYear {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
