package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/glaucoscan/internal/classifier"
	"github.com/example/glaucoscan/internal/events"
	"github.com/example/glaucoscan/internal/imagestore"
	"github.com/example/glaucoscan/internal/logging"
	"github.com/example/glaucoscan/internal/metrics"
	"github.com/example/glaucoscan/internal/repository"
)

// ResultRepository defines the result persistence the use cases need.
type ResultRepository interface {
	Create(ctx context.Context, result *repository.Result) error
	List(ctx context.Context) ([]repository.Result, error)
	ListByPatient(ctx context.Context, patientID uint) ([]repository.Result, error)
	Aggregate(ctx context.Context) (*repository.ResultAggregation, error)
}

// ImageStore saves uploads under the static root.
type ImageStore interface {
	Save(ctx context.Context, src io.Reader, filename string) (*imagestore.Stored, error)
	Remove(stored *imagestore.Stored) error
}

// Archiver copies a stored upload somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, stored *imagestore.Stored, contentType string) error
}

// Upload is one image received from a patient.
type Upload struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// PredictionUseCase orchestrates storage, inference and persistence of predictions.
type PredictionUseCase struct {
	results    ResultRepository
	images     ImageStore
	classifier classifier.Classifier
	archiver   Archiver
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// PredictionOption customises optional collaborators.
type PredictionOption func(*PredictionUseCase)

// WithArchiver copies every classified upload through a.
func WithArchiver(a Archiver) PredictionOption {
	return func(uc *PredictionUseCase) { uc.archiver = a }
}

// WithPublisher announces every stored result through p.
func WithPublisher(p events.Publisher) PredictionOption {
	return func(uc *PredictionUseCase) { uc.publisher = p }
}

// WithMetrics records prediction outcomes in m.
func WithMetrics(m *metrics.Metrics) PredictionOption {
	return func(uc *PredictionUseCase) { uc.metrics = m }
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(results ResultRepository, images ImageStore, c classifier.Classifier, logger *zap.Logger, opts ...PredictionOption) *PredictionUseCase {
	uc := &PredictionUseCase{
		results:    results,
		images:     images,
		classifier: c,
		publisher:  events.NopPublisher{},
		logger:     logger.Named("prediction_usecase"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Predict stores the upload, classifies it and records exactly one Result for
// patientID. When classification fails the upload is discarded, nothing is
// persisted and the returned error wraps classifier.ErrInference.
func (uc *PredictionUseCase) Predict(ctx context.Context, patientID uint, upload Upload) (*repository.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID).With(zap.Uint("patient_id", patientID))

	stored, err := uc.images.Save(ctx, upload.Body, upload.Filename)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.save_upload", requestID, err)
		opLogger.Error("failed to store upload", zap.Error(wrapped))
		return nil, wrapped
	}

	start := uc.now()
	index, err := uc.classifier.Classify(ctx, stored.FullPath)
	elapsed := uc.now().Sub(start)
	if err != nil {
		uc.metrics.ObservePrediction("error", elapsed)
		if rmErr := uc.images.Remove(stored); rmErr != nil {
			opLogger.Warn("failed to discard upload", zap.Error(rmErr))
		}
		if !errors.Is(err, classifier.ErrInference) {
			err = errors.Join(classifier.ErrInference, err)
		}
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Error("classification failed", zap.Error(wrapped))
		return nil, wrapped
	}

	result := &repository.Result{
		PatientID: patientID,
		ImagePath: stored.RelPath,
		Label:     classifier.Label(index),
		Timestamp: uc.now().UTC(),
	}
	if err := uc.results.Create(ctx, result); err != nil {
		wrapped := logging.NewOperationError("usecase.save_result", requestID, err)
		opLogger.Error("failed to persist result", zap.Error(wrapped))
		if rmErr := uc.images.Remove(stored); rmErr != nil {
			opLogger.Warn("failed to discard upload", zap.Error(rmErr))
		}
		return nil, wrapped
	}
	uc.metrics.ObservePrediction(result.Label, elapsed)
	opLogger.Info("prediction recorded",
		zap.Uint("result_id", result.ID),
		zap.Int("category", index),
		zap.String("label", result.Label),
		zap.Duration("inference", elapsed),
	)

	uc.afterCommit(ctx, opLogger, stored, upload.ContentType, result)
	return result, nil
}

// afterCommit runs the best-effort side effects of a stored result.
func (uc *PredictionUseCase) afterCommit(ctx context.Context, opLogger *zap.Logger, stored *imagestore.Stored, contentType string, result *repository.Result) {
	if uc.archiver != nil {
		if err := uc.archiver.Archive(ctx, stored, contentType); err != nil {
			opLogger.Warn("failed to archive upload", zap.Error(err))
		}
	}
	event := events.ResultCreated{
		ResultID:  result.ID,
		PatientID: result.PatientID,
		Label:     result.Label,
		ImagePath: result.ImagePath,
		Timestamp: result.Timestamp,
	}
	if err := uc.publisher.PublishResultCreated(ctx, event); err != nil {
		opLogger.Warn("failed to publish result event", zap.Error(err))
	}
}

// ListResults returns every stored result, newest first.
func (uc *PredictionUseCase) ListResults(ctx context.Context) ([]repository.Result, error) {
	return uc.results.List(ctx)
}

// ListPatientResults returns the results of one patient, newest first.
func (uc *PredictionUseCase) ListPatientResults(ctx context.Context, patientID uint) ([]repository.Result, error) {
	return uc.results.ListByPatient(ctx, patientID)
}
