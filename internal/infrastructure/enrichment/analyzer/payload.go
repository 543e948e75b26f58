package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

var extractedDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// tagList accepts either a JSON array of strings or one comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*t = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		*t = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return fmt.Errorf("tags must be a list or a string: %w", err)
	}
	*t = strings.Split(joined, ",")
	return nil
}

type analysisResponse struct {
	Title         string  `json:"title"`
	ExtractedDate *string `json:"extracted_date"`
	Tags          tagList `json:"tags"`
	Summary       string  `json:"summary"`
}

// DecodeResult turns an analysis JSON object into an Enrichment. Every field
// is optional; an unparseable date is dropped rather than failing the result.
func DecodeResult(raw []byte) (domain.Enrichment, error) {
	var resp analysisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Enrichment{}, fmt.Errorf("decode analysis response: %w", err)
	}

	out := domain.Enrichment{
		Title:   strings.TrimSpace(resp.Title),
		Tags:    domain.NormalizeTags(resp.Tags),
		Summary: strings.TrimSpace(resp.Summary),
	}
	if resp.ExtractedDate != nil {
		out.ExtractedDate = parseExtractedDate(*resp.ExtractedDate)
	}
	return out, nil
}

func parseExtractedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range extractedDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}
