package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// OpenQuestion is one unanswered question with its age and ticker
// context.
type OpenQuestion struct {
	QuestionID     string   `json:"question_id"`
	QuestionText   string   `json:"question_text"`
	AgeDays        int      `json:"age_days"`
	SnapshotIDs    []string `json:"snapshot_ids"`
	CompanyTickers []string `json:"company_tickers"`
}

// IntrospectionService surfaces open questions for periodic review.
type IntrospectionService struct {
	store store.Store
}

// NewIntrospectionService creates an IntrospectionService.
func NewIntrospectionService(st store.Store) *IntrospectionService {
	return &IntrospectionService{store: st}
}

// OpenQuestions returns every question artifact grouped by ticker key,
// oldest first within each group.
func (s *IntrospectionService) OpenQuestions(ctx context.Context, now time.Time) (map[string][]OpenQuestion, error) {
	artifacts, err := s.store.ListByKind(ctx, model.KindReasoning)
	if err != nil {
		return nil, err
	}
	now = model.EnsureUTC(now)

	var results []OpenQuestion
	for _, a := range artifacts {
		ra, ok := a.(*model.ReasoningArtifact)
		if !ok || ra.ArtifactType != model.TypeQuestion {
			continue
		}

		tickers, err := resolveTickers(ctx, s.store, ra.References.SnapshotIDs)
		if err != nil {
			return nil, err
		}

		results = append(results, OpenQuestion{
			QuestionID:     ra.ReasoningID,
			QuestionText:   ra.Claim.Statement,
			AgeDays:        int(now.Sub(model.EnsureUTC(ra.CreatedAt)).Hours() / 24),
			SnapshotIDs:    ra.References.SnapshotIDs,
			CompanyTickers: sortedKeys(tickers),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AgeDays > results[j].AgeDays
	})

	grouped := make(map[string][]OpenQuestion)
	for _, item := range results {
		key := groupKey(item.CompanyTickers)
		grouped[key] = append(grouped[key], item)
	}
	return grouped, nil
}
