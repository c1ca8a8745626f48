package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/apperror"
	"github.com/example/wardrobe-scan/internal/logging"
)

// WardrobeSummary represents aggregated wardrobe insights for one owner.
type WardrobeSummary struct {
	TotalItems int64            `json:"total_items"`
	Categories map[string]int64 `json:"categories"`
	Colors     []string         `json:"colors"`
}

// Summary aggregates the owner's stored items.
func (uc *WardrobeUseCase) Summary(ctx context.Context, ownerID string) (*WardrobeSummary, error) {
	if ownerID == "" {
		return nil, apperror.New(apperror.KindAuth, "usecase.summary", "", errOwnerRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.opts.DatabaseTimeout)
	defer cancel()

	aggregation, err := uc.repo.Summarize(ctx, ownerID)
	if err != nil {
		wrapped := apperror.New(apperror.KindDatabase, "usecase.summary", "", err)
		logging.WithOperation(uc.logger, "usecase.summary", "").Error("failed to summarize wardrobe", zap.Error(wrapped))
		return nil, wrapped
	}

	summary := &WardrobeSummary{
		TotalItems: aggregation.TotalCount,
		Categories: make(map[string]int64, len(aggregation.Categories)),
		Colors:     aggregation.Colors,
	}
	for _, c := range aggregation.Categories {
		summary.Categories[c.Category] = c.Count
	}
	if summary.Colors == nil {
		summary.Colors = []string{}
	}
	return summary, nil
}
