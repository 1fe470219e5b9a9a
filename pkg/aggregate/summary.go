package aggregate

import (
	"strings"

	"github.com/evalforge/evalforge/pkg/models"
)

// maxPerCategory caps how many insight strings each summary bucket keeps.
const maxPerCategory = 5

// categoryKeywords drives the thematic bucketing of insight strings. This is
// a keyword heuristic, not NLP; an insight may land in several buckets.
var categoryKeywords = map[string][]string{
	"strengths":       {"strong", "strength", "advantage", "excellent", "solid", "proven", "leading"},
	"weaknesses":      {"weak", "weakness", "lack", "limited", "gap", "insufficient", "poor"},
	"opportunities":   {"opportunity", "potential", "growth", "emerging", "untapped", "expansion"},
	"risks":           {"risk", "threat", "concern", "exposure", "volatile", "uncertain", "churn"},
	"recommendations": {"recommend", "should", "consider", "suggest", "advise", "prioritize"},
}

// Summarize scans every insight string of the valid results for category
// keywords and returns up to five matches per theme.
func Summarize(results []TaskResult) models.Summary {
	buckets := map[string][]string{}

	for _, result := range results {
		for _, insight := range result.Response.Insights {
			lowered := strings.ToLower(insight)

			for category, keywords := range categoryKeywords {
				if len(buckets[category]) >= maxPerCategory {
					continue
				}

				for _, keyword := range keywords {
					if strings.Contains(lowered, keyword) {
						buckets[category] = append(buckets[category], insight)

						break
					}
				}
			}
		}
	}

	return models.Summary{
		Strengths:       buckets["strengths"],
		Weaknesses:      buckets["weaknesses"],
		Opportunities:   buckets["opportunities"],
		Risks:           buckets["risks"],
		Recommendations: buckets["recommendations"],
	}
}
