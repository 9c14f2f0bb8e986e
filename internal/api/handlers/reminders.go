// Package handlers contains the HTTP handlers for the Lembra worker's
// trigger surface.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"lembra/internal/core"
	"lembra/internal/scheduler"
	"lembra/internal/types"
)

// ReminderRunner executes one reminder pipeline pass.
type ReminderRunner interface {
	Run(ctx context.Context) (scheduler.RunResult, error)
}

// runResponse is the trigger endpoint's success body. The mixed key naming
// is the contract callers already depend on.
type runResponse struct {
	Message             string `json:"message"`
	ExecutionID         string `json:"execution_id"`
	ExecutionTime       string `json:"execution_time"`
	ExecutionDurationMS int64  `json:"execution_duration_ms"`
	InsertedLogsCount   int    `json:"insertedLogsCount"`
	ProcessedLogsCount  int    `json:"processedLogsCount"`
	SentCount           int    `json:"sentCount"`
	FailedCount         int    `json:"failedCount"`
	Status              string `json:"status"`
}

// runErrorResponse is the trigger endpoint's failure body. The execution
// fields are present when the ERROR record was written.
type runErrorResponse struct {
	Error               string `json:"error"`
	ExecutionID         string `json:"execution_id,omitempty"`
	ExecutionDurationMS *int64 `json:"execution_duration_ms,omitempty"`
}

// RemindersHandler serves POST /worker/reminders: it runs the pipeline once
// and reports the outcome.
type RemindersHandler struct {
	runner ReminderRunner
	logger *slog.Logger
}

// NewRemindersHandler creates the trigger handler.
func NewRemindersHandler(runner ReminderRunner, logger *slog.Logger) *RemindersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemindersHandler{
		runner: runner,
		logger: logger,
	}
}

// ServeHTTP runs one pipeline pass. No-op runs return only a message; full
// runs return the execution summary; pipeline errors return the error
// message with whatever execution accounting survived.
func (h *RemindersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.Error("reminder run failed",
			"execution_id", res.ExecutionID,
			"error", err,
			"request_id", types.GetRequestID(r.Context()),
		)

		status := http.StatusInternalServerError
		message := "an unexpected error occurred"
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			status = appErr.HTTPStatus()
			message = appErr.Message
		}

		body := runErrorResponse{
			Error:       message,
			ExecutionID: res.ExecutionID,
		}
		if res.ExecutionID != "" {
			ms := res.Duration.Milliseconds()
			body.ExecutionDurationMS = &ms
		}
		core.JSON(w, status, body)
		return
	}

	if res.NoOp() {
		core.JSON(w, http.StatusOK, map[string]string{"message": res.NoOpReason})
		return
	}

	core.JSON(w, http.StatusOK, runResponse{
		Message:             "reminder run completed",
		ExecutionID:         res.ExecutionID,
		ExecutionTime:       res.ExecutionTime.Format(time.RFC3339),
		ExecutionDurationMS: res.Duration.Milliseconds(),
		InsertedLogsCount:   res.Inserted,
		ProcessedLogsCount:  res.Processed,
		SentCount:           res.Sent,
		FailedCount:         res.Failed,
		Status:              string(res.Status),
	})
}
