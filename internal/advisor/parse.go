package advisor

import (
	"encoding/json"
	"strings"
)

// fallbackSummaryLen bounds the raw text kept when JSON parsing fails.
const fallbackSummaryLen = 800

// parseChangeAnalysis tolerates code fences and stray prose around the
// JSON object. Anything unparseable becomes a plain-text summary with
// empty lists.
func parseChangeAnalysis(raw string) *ChangeAnalysis {
	cleaned := strings.TrimSpace(raw)
	for _, fence := range []string{"```json", "```"} {
		if idx := strings.Index(cleaned, fence); idx >= 0 {
			cleaned = cleaned[idx+len(fence):]
			if end := strings.Index(cleaned, "```"); end >= 0 {
				cleaned = cleaned[:end]
			}
			cleaned = strings.TrimSpace(cleaned)
			break
		}
	}
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var out ChangeAnalysis
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return &ChangeAnalysis{
			DeltaSummary:      truncateRunes(strings.TrimSpace(raw), fallbackSummaryLen),
			PotentialTensions: []string{},
			QuestionsRaised:   []string{},
		}
	}
	if out.PotentialTensions == nil {
		out.PotentialTensions = []string{}
	}
	if out.QuestionsRaised == nil {
		out.QuestionsRaised = []string{}
	}
	return &out
}
