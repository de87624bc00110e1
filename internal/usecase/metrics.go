package usecase

import "context"

// ResultSummary represents aggregated screening insights for administrators.
type ResultSummary struct {
	TotalResults  int64   `json:"total_results"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	PositiveRate  float64 `json:"positive_rate"`
}

// GetSummary aggregates the stored results.
func (uc *PredictionUseCase) GetSummary(ctx context.Context) (*ResultSummary, error) {
	aggregation, err := uc.results.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ResultSummary{
		TotalResults:  aggregation.TotalCount,
		PositiveCount: aggregation.PositiveCount,
		NegativeCount: aggregation.TotalCount - aggregation.PositiveCount,
	}
	if aggregation.TotalCount > 0 {
		summary.PositiveRate = float64(aggregation.PositiveCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}
