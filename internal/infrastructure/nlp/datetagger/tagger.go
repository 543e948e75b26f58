package datetagger

import (
	"regexp"
	"sort"
	"strings"
)

const monthName = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	// Labelled fields: the value runs to the end of the line.
	labelPattern = regexp.MustCompile(`(?im)\b(?:invoice|issue|issued|document|statement|receipt|order|billing|posting|transaction|payment)?\s*(?:date|dated|issued on|date of issue)\s*[:#-]?\s*([^\n]{4,40})`)

	// Free-standing written dates such as "1st of March 2021" or "March 1, 2021".
	writtenDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b` + monthName + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthName + `\.?,?\s+\d{4}\b`),
	}
)

// Tagger is a rule-based date entity tagger. It is stateless and safe for
// concurrent use once constructed.
type Tagger struct{}

func New() *Tagger {
	return &Tagger{}
}

type span struct {
	start int
	text  string
}

// DateEntities returns candidate date spans in the order they appear in text.
func (t *Tagger) DateEntities(text string) []string {
	var spans []span
	for _, m := range labelPattern.FindAllStringSubmatchIndex(text, -1) {
		value := strings.TrimSpace(text[m[2]:m[3]])
		if value != "" {
			spans = append(spans, span{start: m[2], text: value})
		}
	}
	for _, pattern := range writtenDatePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], text: text[loc[0]:loc[1]]})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]string, 0, len(spans))
	seen := make(map[int]struct{}, len(spans))
	for _, s := range spans {
		if _, ok := seen[s.start]; ok {
			continue
		}
		seen[s.start] = struct{}{}
		out = append(out, s.text)
	}
	return out
}
