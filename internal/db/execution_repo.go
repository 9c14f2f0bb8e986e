package db

import (
	"context"

	"github.com/google/uuid"

	"lembra/internal/types"
)

// ExecutionRepository appends per-invocation summary rows to
// worker_execution_logs.
type ExecutionRepository struct {
	db DBTX
}

// NewExecutionRepository creates an ExecutionRepository backed by the given
// connection (pool or transaction).
func NewExecutionRepository(db DBTX) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Insert appends an execution log row and returns its generated id.
func (r *ExecutionRepository) Insert(ctx context.Context, log types.ExecutionLog) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx,
		`INSERT INTO worker_execution_logs
		   (id, execution_time, status, messages_processed, messages_sent,
		    messages_failed, duration_ms, details, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		log.ExecutionTime,
		string(log.Status),
		log.MessagesProcessed,
		log.MessagesSent,
		log.MessagesFailed,
		log.DurationMS,
		log.Details,
		log.ErrorMessage,
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to insert execution log", err)
	}
	return id, nil
}
