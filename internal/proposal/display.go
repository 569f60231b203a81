package proposal

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// DisplayItem is one pending proposal shaped for presentation.
type DisplayItem struct {
	ProposalID string          `json:"proposal_id"`
	BeliefID   string          `json:"belief_id"`
	BeliefText string          `json:"belief_text"`
	AgeDays    int             `json:"age_days"`
	Type       string          `json:"proposal_type"`
	Condition  model.Condition `json:"condition_state"`
}

// HistoryItem is one proposal of any status, annotated for audit.
type HistoryItem struct {
	ProposalID string          `json:"proposal_id"`
	BeliefID   string          `json:"belief_id"`
	BeliefText string          `json:"belief_text"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     string          `json:"status"`
	AgeDays    int             `json:"age_days"`
	Condition  model.Condition `json:"condition_state"`
}

// ListForDisplay returns pending proposals clustered by type, then by
// exact belief statement text. No text normalization is applied to the
// cluster key. Each cluster is ordered newest first.
func (e *Engine) ListForDisplay(ctx context.Context, now time.Time) (map[string]map[string][]DisplayItem, error) {
	pending, err := e.store.ListProposals(ctx, store.ProposalFilter{
		Statuses: []model.ProposalStatus{model.ProposalPending},
	})
	if err != nil {
		return nil, err
	}
	now = model.EnsureUTC(now)

	grouped := make(map[string]map[string][]DisplayItem)
	for _, p := range pending {
		byText, ok := grouped[string(p.Type)]
		if !ok {
			byText = make(map[string][]DisplayItem)
			grouped[string(p.Type)] = byText
		}
		byText[p.Payload.BeliefText] = append(byText[p.Payload.BeliefText], DisplayItem{
			ProposalID: p.ProposalID,
			BeliefID:   p.Payload.BeliefID,
			BeliefText: p.Payload.BeliefText,
			AgeDays:    int(now.Sub(model.EnsureUTC(p.CreatedAt)).Hours() / 24),
			Type:       string(p.Type),
			Condition:  p.Payload.Condition,
		})
	}
	return grouped, nil
}

// HistoryForDisplay returns every proposal, any status, grouped by
// type then status, newest first within each bucket.
func (e *Engine) HistoryForDisplay(ctx context.Context, now time.Time) (map[string]map[string][]HistoryItem, error) {
	all, err := e.store.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return nil, err
	}
	now = model.EnsureUTC(now)

	grouped := make(map[string]map[string][]HistoryItem)
	for _, p := range all {
		byStatus, ok := grouped[string(p.Type)]
		if !ok {
			byStatus = make(map[string][]HistoryItem)
			grouped[string(p.Type)] = byStatus
		}
		byStatus[string(p.Status)] = append(byStatus[string(p.Status)], HistoryItem{
			ProposalID: p.ProposalID,
			BeliefID:   p.Payload.BeliefID,
			BeliefText: p.Payload.BeliefText,
			CreatedAt:  p.CreatedAt,
			Status:     string(p.Status),
			AgeDays:    int(now.Sub(model.EnsureUTC(p.CreatedAt)).Hours() / 24),
			Condition:  p.Payload.Condition,
		})
	}

	for _, byStatus := range grouped {
		for _, bucket := range byStatus {
			sort.SliceStable(bucket, func(i, j int) bool {
				return bucket[i].CreatedAt.After(bucket[j].CreatedAt)
			})
		}
	}
	return grouped, nil
}
