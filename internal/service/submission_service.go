package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/internal/pipeline"
	"github.com/garyjia/expense-gate/internal/syncutil"
)

// SubmissionReader is the query surface the HTTP layer reads submissions
// through.
type SubmissionReader interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.ExpenseSubmission, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]*models.ExpenseSubmission, error)
}

// BatchResult summarizes one batch ingestion run.
type BatchResult struct {
	ExecutionID string             `json:"execution_id"`
	Total       int                `json:"total"`
	Processed   int                `json:"processed"`
	Failed      int                `json:"failed"`
	Outcomes    []pipeline.Outcome `json:"outcomes"`
}

// SubmissionService accepts expense submissions, single or batched, and
// drives them through the review pipeline. Rows with distinct transaction
// ids run concurrently; same-id rows are serialized by key.
type SubmissionService struct {
	processor *pipeline.Processor
	reader    SubmissionReader
	locks     *syncutil.KeyedMutex
	workers   int
	logger    *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(processor *pipeline.Processor, reader SubmissionReader, workers int, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		processor: processor,
		reader:    reader,
		locks:     syncutil.NewKeyedMutex(),
		workers:   workers,
		logger:    logger,
	}
}

// Submit processes one manually entered submission and returns its outcome.
func (s *SubmissionService) Submit(ctx context.Context, fields map[string]string) pipeline.Outcome {
	executionID := uuid.New().String()
	return s.process(ctx, executionID, pipeline.SourceManual, fields)
}

// SubmitBatch parses a spreadsheet upload and processes every row. A header
// failure rejects the whole file; after that, each row succeeds or fails
// independently and the per-row outcomes are returned in file order.
func (s *SubmissionService) SubmitBatch(ctx context.Context, r io.Reader, filename string) (*BatchResult, error) {
	rows, err := pipeline.ParseBatchFile(r, filename)
	if err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	result := &BatchResult{
		ExecutionID: executionID,
		Total:       len(rows),
		Outcomes:    make([]pipeline.Outcome, len(rows)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			result.Outcomes[i] = s.process(gctx, executionID, pipeline.SourceBatch, row)
			return nil
		})
	}
	g.Wait()

	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			result.Failed++
		} else {
			result.Processed++
		}
	}

	s.logger.Info("Batch ingestion complete",
		zap.String("execution_id", executionID),
		zap.String("filename", filename),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed))

	return result, nil
}

// Get returns one submission by transaction id, nil when absent.
func (s *SubmissionService) Get(ctx context.Context, transactionID string) (*models.ExpenseSubmission, error) {
	return s.reader.GetByTransactionID(ctx, transactionID)
}

// ListByEmployee returns all submissions for one employee, newest first.
func (s *SubmissionService) ListByEmployee(ctx context.Context, employeeID string) ([]*models.ExpenseSubmission, error) {
	return s.reader.ListByEmployee(ctx, employeeID)
}

// process serializes pipeline runs per transaction id. Rows without an id
// get one generated downstream, so an empty key stays unlocked here and the
// store's uniqueness constraint remains the last line of defense.
func (s *SubmissionService) process(ctx context.Context, executionID, source string, fields map[string]string) pipeline.Outcome {
	if id := fields[pipeline.ColTransactionID]; id != "" {
		unlock := s.locks.Lock(fmt.Sprintf("submission:%s", id))
		defer unlock()
	}
	return s.processor.Process(ctx, executionID, source, fields)
}
