package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/glaucoscan/internal/logging"
)

// ResultRepository provides persistence APIs for prediction results.
type ResultRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewResultRepository creates a new repository instance.
func NewResultRepository(db *gorm.DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger.Named("result_repository")}
}

// Create persists a result. A zero Timestamp is set to the current UTC time.
func (r *ResultRepository) Create(ctx context.Context, result *Result) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(result).Error; err != nil {
		r.logger.Error("failed to insert result", zap.Error(err), zap.Uint("patient_id", result.PatientID))
		return logging.NewOperationError("repository.create_result", "", err)
	}
	return nil
}

// List returns every result, newest first, with the patient preloaded.
func (r *ResultRepository) List(ctx context.Context) ([]Result, error) {
	var results []Result
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Order("timestamp DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.list_results", "", err)
	}
	return results, nil
}

// ListByPatient returns the results recorded for one patient, newest first.
func (r *ResultRepository) ListByPatient(ctx context.Context, patientID uint) ([]Result, error) {
	var results []Result
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.list_patient_results", "", err)
	}
	return results, nil
}

// Aggregate counts stored results by label.
func (r *ResultRepository) Aggregate(ctx context.Context) (*ResultAggregation, error) {
	var agg ResultAggregation
	db := r.db.WithContext(ctx).Model(&Result{})
	if err := db.Count(&agg.TotalCount).Error; err != nil {
		return nil, logging.NewOperationError("repository.aggregate_results", "", err)
	}
	err := r.db.WithContext(ctx).Model(&Result{}).
		Where("result = ?", LabelPositive).
		Count(&agg.PositiveCount).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.aggregate_results", "", err)
	}
	return &agg, nil
}
